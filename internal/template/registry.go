package template

import "tonebridge/internal/domain"

// SkipRule adjusts a template's sections for one persona: skipped
// sections are removed, shortened/expanded ones change the length
// guidance in the final prompt.
type SkipRule struct {
	Skip    []Section
	Shorten []Section
	Expand  []Section
}

// Template is one purpose-based message structure.
type Template struct {
	ID           string
	Name         string
	SectionOrder []Section
	Constraints  string
	PersonaRules map[domain.Persona]SkipRule
}

// DefaultTemplateID is the fallback when nothing more specific matches.
const DefaultTemplateID = "T01_GENERAL"

var bossProfOfficialRules = map[domain.Persona]SkipRule{
	domain.PersonaBoss:      {Shorten: []Section{S1Acknowledge}},
	domain.PersonaProfessor: {Shorten: []Section{S1Acknowledge}},
	domain.PersonaOfficial:  {Shorten: []Section{S1Acknowledge}},
}

var clientExpandS1S2 = map[domain.Persona]SkipRule{
	domain.PersonaClient:    {Expand: []Section{S1Acknowledge, S2OurEffort}},
	domain.PersonaBoss:      {Shorten: []Section{S1Acknowledge}},
	domain.PersonaProfessor: {Shorten: []Section{S1Acknowledge}},
	domain.PersonaOfficial:  {Shorten: []Section{S1Acknowledge}},
}

var parentExpandS1 = map[domain.Persona]SkipRule{
	domain.PersonaParent:    {Expand: []Section{S1Acknowledge}},
	domain.PersonaBoss:      {Shorten: []Section{S1Acknowledge}},
	domain.PersonaProfessor: {Shorten: []Section{S1Acknowledge}},
	domain.PersonaOfficial:  {Shorten: []Section{S1Acknowledge}},
}

// Registry resolves template IDs, preserving registration order.
type Registry struct {
	byID  map[string]Template
	order []string
}

// NewRegistry builds the twelve standard templates.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]Template)}

	r.register(Template{
		ID: "T01_GENERAL", Name: "일반 전달",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S5Request, S6Options, S8Closing},
		Constraints:  "범용 템플릿. 특정 패턴 없이 사실 전달 + 요청 + 대안 구조.",
		PersonaRules: bossProfOfficialRules,
	})
	r.register(Template{
		ID: "T02_DATA_REQUEST", Name: "자료 요청",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S5Request, S8Closing},
		Constraints:  "요청 사유를 먼저 밝히고, 구체적 자료/기한/형식을 명시. 부담을 줄이는 완곡 표현.",
		PersonaRules: bossProfOfficialRules,
	})
	r.register(Template{
		ID: "T03_NAGGING_REMINDER", Name: "독촉/리마인더",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S5Request, S8Closing},
		Constraints:  "이전 요청 상기 + 회신 기한. 비난 없이 사실 기반 리마인드. S1은 짧게.",
		PersonaRules: map[domain.Persona]SkipRule{
			domain.PersonaBoss:      {Shorten: []Section{S1Acknowledge}},
			domain.PersonaProfessor: {Shorten: []Section{S1Acknowledge}},
			domain.PersonaOfficial:  {Shorten: []Section{S1Acknowledge}},
			domain.PersonaClient:    {Shorten: []Section{S1Acknowledge}},
		},
	})
	r.register(Template{
		ID: "T04_SCHEDULE", Name: "일정 조율/지연",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S4Responsibility, S6Options, S8Closing},
		Constraints:  "사과 → 지연 원인(사실) → 새 일정 제안. 변명 최소화, 대안 집중.",
		PersonaRules: parentExpandS1,
	})
	r.register(Template{
		ID: "T05_APOLOGY", Name: "사과/수습",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S2OurEffort, S3Facts, S6Options, S8Closing},
		Constraints:  "진심 사과 → 내부 확인 노력 → 원인 → 해결/재발 방지. S2 필수.",
		PersonaRules: clientExpandS1S2,
	})
	r.register(Template{
		ID: "T06_REJECTION", Name: "거절/불가 안내",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S7Policy, S3Facts, S6Options, S8Closing},
		Constraints:  "공감 → 정책/규정 근거 → 대안 제시. 감정 배제, 거절 이유 명확.",
		PersonaRules: clientExpandS1S2,
	})
	r.register(Template{
		ID: "T07_ANNOUNCEMENT", Name: "공지/안내",
		SectionOrder: []Section{S0Greeting, S3Facts, S5Request, S8Closing},
		Constraints:  "두괄식. 핵심 정보(일시/장소/대상) 먼저. 행동 요청으로 마무리. S1 생략.",
	})
	r.register(Template{
		ID: "T08_FEEDBACK", Name: "피드백",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S5Request, S6Options, S8Closing},
		Constraints:  "긍정 인정 → 개선점(요청 형태) → 기대 효과. 비판 아닌 성장 지향.",
		PersonaRules: parentExpandS1,
	})
	r.register(Template{
		ID: "T09_BLAME_SEPARATION", Name: "책임 분리",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S2OurEffort, S3Facts, S4Responsibility, S6Options, S8Closing},
		Constraints:  "공감 → 내부 확인 → 사실 나열 → 귀책 방향(주어 전환) → 해결안. 비난 제거 필수.",
		PersonaRules: clientExpandS1S2,
	})
	r.register(Template{
		ID: "T10_RELATIONSHIP_RECOVERY", Name: "관계 회복",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S6Options, S8Closing},
		Constraints:  "깊은 공감·사과 → 상황 인정 → 협력 제안. 감정 간접 전환 중시.",
		PersonaRules: parentExpandS1,
	})
	r.register(Template{
		ID: "T11_REFUND_REJECTION", Name: "환불 거절",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S2OurEffort, S3Facts, S7Policy, S6Options, S8Closing},
		Constraints:  "공감 → 내부 점검 → 사실 → 정책 근거 → 대안. S2 필수(점검 노력 표시).",
		PersonaRules: clientExpandS1S2,
	})
	r.register(Template{
		ID: "T12_WARNING_PREVENTION", Name: "경고/재발 방지",
		SectionOrder: []Section{S0Greeting, S1Acknowledge, S3Facts, S5Request, S6Options, S8Closing},
		Constraints:  "문제 인정 → 사실/경과 → 구체적 요청(재발 방지) → 기대 효과.",
		PersonaRules: bossProfOfficialRules,
	})

	return r
}

func (r *Registry) register(t Template) {
	r.byID[t.ID] = t
	r.order = append(r.order, t.ID)
}

// Get returns the template for id, or the default when unknown.
func (r *Registry) Get(id string) Template {
	if t, ok := r.byID[id]; ok {
		return t
	}
	return r.byID[DefaultTemplateID]
}

// Default returns the general template.
func (r *Registry) Default() Template { return r.byID[DefaultTemplateID] }

// All returns every template in registration order.
func (r *Registry) All() []Template {
	out := make([]Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
