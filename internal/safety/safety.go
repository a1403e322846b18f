// Package safety screens caregiver messages before they reach the
// answer pipeline.
//
// Two guards run in order: crisis detection (suicide, self-harm, harm
// to others, abuse) which short-circuits with signposting to emergency
// services, and a diagnosis-request guard which refuses medical
// diagnosis without calling the model. Neither guard ever blocks on a
// hosted service.
package safety

import "strings"

// Category labels a crisis detection.
type Category string

const (
	CategorySuicide    Category = "suicide"
	CategorySelfHarm   Category = "self_harm"
	CategoryHarmOthers Category = "harm_others"
	CategoryAbuse      Category = "abuse"
)

// Result of screening one message.
type Result struct {
	Crisis    bool
	Category  Category
	Keywords  []string
	Response  string
	Diagnosis bool
}

// crisisKeywords maps each category to its trigger phrases. Matching
// is case-insensitive substring containment: crude, but a false
// positive costs a signposting message while a false negative costs
// far more.
var crisisKeywords = map[Category][]string{
	CategorySuicide: {
		"kill myself", "suicide", "end my life", "want to die",
		"better off dead", "no reason to live", "take my own life",
		"suicidal", "end it all",
	},
	CategorySelfHarm: {
		"cut myself", "hurt myself", "self harm", "self-harm",
		"burn myself", "harm myself", "cutting", "burning myself",
	},
	CategoryHarmOthers: {
		"kill him", "kill her", "kill them", "harm the patient",
		"hurt him", "hurt her", "going to hurt", "want to kill",
		"strangle", "suffocate",
	},
	CategoryAbuse: {
		"hitting him", "hitting her", "hitting the patient",
		"beating them", "locked them in", "withholding food",
		"leaving them alone for days", "neglecting", "slapping",
	},
}

// checkOrder fixes evaluation order so a message matching several
// categories always reports the most urgent one.
var checkOrder = []Category{CategorySuicide, CategorySelfHarm, CategoryHarmOthers, CategoryAbuse}

// diagnosisKeywords trigger the diagnosis-refusal guard.
var diagnosisKeywords = []string{
	"diagnose", "diagnosis", "what does he have", "what does she have",
	"what condition", "what disease", "what is wrong", "does he have",
	"does she have", "is this alzheimer", "is it dementia",
	"could this be", "what type of dementia", "which dementia",
	"what stage", "is this normal aging", "medical opinion",
	"can you tell if", "symptom of what", "caused by what",
}

// Screen checks a message against the crisis and diagnosis guards.
func Screen(message string) Result {
	lower := strings.ToLower(message)

	for _, category := range checkOrder {
		var matched []string
		for _, kw := range crisisKeywords[category] {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			return Result{
				Crisis:   true,
				Category: category,
				Keywords: matched,
				Response: crisisResponses[category],
			}
		}
	}

	for _, kw := range diagnosisKeywords {
		if strings.Contains(lower, kw) {
			return Result{Diagnosis: true, Response: diagnosisRefusal}
		}
	}

	return Result{}
}

const diagnosisRefusal = `I can't provide medical diagnoses. I'm a caregiving support assistant, not a medical professional — only qualified healthcare providers can diagnose medical conditions.

What I can help with: practical caregiving strategies, daily routines, communication techniques, managing challenging behaviours, home safety, and support for you as a caregiver.

For diagnosis, please speak to a primary care physician, a neurologist or geriatrician, or a memory clinic. Would practical caregiving advice help instead?`

var crisisResponses = map[Category]string{
	CategorySuicide: `I'm very concerned about what you've shared. Please get immediate help:

- 999 — emergency services, if you're in immediate danger
- Samaritans: 116 123 (24/7, free to call)
- Crisis Text Line: text SHOUT to 85258
- NHS 111, option 2 — mental health crisis team

You don't have to face this alone. These services are confidential and staffed by trained professionals. I'm not equipped to support you with suicidal thoughts — please reach out to them now.`,

	CategorySelfHarm: `I'm concerned about what you've shared. Please get support:

- Samaritans: 116 123 (24/7, confidential)
- Mind: 0300 123 3393
- NHS 111, option 2 — mental health support
- Your GP can arrange an urgent mental health assessment

This chat isn't designed to support self-harm. Please speak to a trained professional who can help you safely.`,

	CategoryHarmOthers: `I need to be direct with you. If you're having thoughts about harming someone:

- Call 999 if you feel you might act on these thoughts
- Contact your GP immediately for urgent mental health support
- Samaritans: 116 123, to talk these feelings through confidentially

If the person you care for is in immediate danger, call 999 now. I can't continue this conversation — please speak to a professional.`,

	CategoryAbuse: `What you're describing sounds very serious. If someone is being harmed or neglected:

- Call 999 if there's immediate danger
- Adult safeguarding: 0300 500 80 80
- Hourglass elder abuse helpline: 080 8808 8141
- Your local social services department

This is beyond what this chat can help with. These services are confidential and trained to protect vulnerable adults.`,
}
