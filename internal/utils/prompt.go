package utils

import (
	"fmt"
)

// SystemPrompt is sent as the system role where the API has one
const SystemPrompt = "You are a giveaway legitimacy checker. Respond only with JSON."

const legitimacyPrompt = `You review promotional emails that advertise giveaways, sweepstakes and contests.
Decide whether the following email advertises a legitimate giveaway run by a real brand,
as opposed to phishing, advance-fee fraud or a scam that asks for payment or credentials.
Respond with a JSON object containing:
- score: number between 0 and 1 (higher means more likely to be a legitimate giveaway)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- explanation: string (brief reason for the score)

Email:
%s

Respond only with the JSON object and nothing else.`

// Verdict is the JSON object a model is asked to return
type Verdict struct {
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// LegitimacyPrompt renders the classification prompt around the email text
func LegitimacyPrompt(text string) string {
	return fmt.Sprintf(legitimacyPrompt, text)
}

// ParseVerdict extracts a Verdict from a model reply
func ParseVerdict(reply string) (Verdict, error) {
	var v Verdict
	if err := DecodeJSONObject(reply, &v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}
