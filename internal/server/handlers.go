package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
	"tonebridge/internal/pipeline"
)

// rewriteRequest is the JSON body of both rewrite endpoints. Field
// names match the frontend contract.
type rewriteRequest struct {
	Persona               string   `json:"persona"`
	Contexts              []string `json:"contexts"`
	ToneLevel             string   `json:"toneLevel"`
	OriginalText          string   `json:"originalText"`
	UserPrompt            string   `json:"userPrompt"`
	SenderInfo            string   `json:"senderInfo"`
	IdentityBoosterToggle bool     `json:"identityBoosterToggle"`
	Topic                 string   `json:"topic"`
	Purpose               string   `json:"purpose"`
	Tier                  string   `json:"tier"`
}

func tierOf(raw string) domain.UserTier {
	if strings.EqualFold(strings.TrimSpace(raw), string(domain.TierFree)) {
		return domain.TierFree
	}
	return domain.TierPaid
}

// toPipelineRequest validates and converts the wire request. Unknown
// personas and tones fall back to their defaults; unknown contexts are
// rejected so a typo cannot silently change the rewrite strategy.
func (s *Server) toPipelineRequest(req rewriteRequest) (pipeline.Request, error) {
	if strings.TrimSpace(req.OriginalText) == "" {
		return pipeline.Request{}, fmt.Errorf("originalText is required")
	}
	if len(req.Contexts) == 0 {
		return pipeline.Request{}, fmt.Errorf("at least one context is required")
	}

	var contexts []domain.SituationContext
	for _, raw := range req.Contexts {
		sc, ok := domain.ParseSituationContext(raw)
		if !ok {
			return pipeline.Request{}, fmt.Errorf("unknown context: %q", raw)
		}
		contexts = append(contexts, sc)
	}

	out := pipeline.Request{
		Persona:       domain.ParsePersona(req.Persona),
		Contexts:      contexts,
		Tone:          domain.ParseToneLevel(req.ToneLevel),
		Text:          req.OriginalText,
		UserPrompt:    req.UserPrompt,
		SenderInfo:    req.SenderInfo,
		BoosterToggle: req.IdentityBoosterToggle,
		Tier:          tierOf(req.Tier),
	}
	if t, ok := domain.ParseTopic(req.Topic); ok {
		out.Topic = t
	}
	if p, ok := domain.ParsePurpose(req.Purpose); ok {
		out.Purpose = p
	}
	return out, nil
}

type validationIssueBody struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	MatchedText string `json:"matchedText"`
}

func issueBodies(issues []domain.ValidationIssue) []validationIssueBody {
	out := make([]validationIssueBody, 0, len(issues))
	for _, i := range issues {
		out = append(out, validationIssueBody{
			Type:        string(i.Type),
			Severity:    string(i.Severity),
			Message:     i.Message,
			MatchedText: i.MatchedText,
		})
	}
	return out
}

// rewrite is the blocking JSON endpoint.
func (s *Server) rewrite(c *gin.Context) {
	var body rewriteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := s.toPipelineRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.pipe.CheckLength(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.pipe.Transform(c.Request.Context(), req)
	if err != nil {
		logging.For(logging.CategoryAPI).Error("rewrite failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": pipeline.GenericErrorMessage})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transformedText":  res.TransformedText,
		"validationIssues": issueBodies(res.Issues),
		"stats": gin.H{
			"segmentCount":     res.Stats.SegmentCount,
			"greenCount":       res.Stats.GreenCount,
			"yellowCount":      res.Stats.YellowCount,
			"redCount":         res.Stats.RedCount,
			"lockedSpanCount":  res.Stats.LockedSpanCount,
			"retryCount":       res.Stats.RetryCount,
			"chosenTemplateId": res.Stats.ChosenTemplateID,
			"latencyMs":        res.Stats.TotalLatencyMS,
		},
	})
}

// sseSink writes pipeline events in `event:`/`data:` wire format,
// flushing after every event so deltas reach the client immediately.
type sseSink struct {
	c  *gin.Context
	mu sync.Mutex
}

func (s *sseSink) Emit(event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.SSEvent(event, data)
	s.c.Writer.Flush()
}

// rewriteStream runs the pipeline and streams its events over SSE.
// Validation problems are rejected with a JSON 400 before the stream
// starts; later failures arrive as an error event on the stream.
func (s *Server) rewriteStream(c *gin.Context) {
	var body rewriteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := s.toPipelineRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.pipe.CheckLength(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if err := s.pipe.Run(c.Request.Context(), req, &sseSink{c: c}); err != nil {
		logging.For(logging.CategoryAPI).Error("stream rewrite failed",
			zap.Error(err),
			zap.String("requestId", c.GetString("requestID")))
	}
}
