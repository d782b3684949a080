package scorecard

// Scores are the per-dimension marks on a 0-10 scale.
type Scores struct {
	Clarity          int `json:"clarity"`
	CustomerPain     int `json:"customer_pain"`
	SolutionFit      int `json:"solution_fit"`
	Proof            int `json:"proof"`
	GrowthWedge      int `json:"growth_wedge"`
	Retention        int `json:"retention"`
	PricingUnitEcon  int `json:"pricing_unit_econ"`
	CompetitionMoat  int `json:"competition_moat"`
	FounderStrength  int `json:"founder_strength"`
	SpeedOfIteration int `json:"speed_of_iteration"`
}

// Average is the overall score across all ten dimensions.
func (s Scores) Average() float64 {
	sum := s.Clarity + s.CustomerPain + s.SolutionFit + s.Proof + s.GrowthWedge +
		s.Retention + s.PricingUnitEcon + s.CompetitionMoat + s.FounderStrength + s.SpeedOfIteration
	return float64(sum) / 10.0
}

// Risk is one identified weakness backed by a transcript quote.
type Risk struct {
	Risk          string `json:"risk"`
	EvidenceQuote string `json:"evidence_quote"`
	Fix           string `json:"fix"`
}

// Feedback is the accelerator-style narrative section.
type Feedback struct {
	WhatIBelieveYouAreBuilding string   `json:"what_i_believe_you_are_building"`
	WhatINeedToBelieveNext     []string `json:"what_i_need_to_believe_next"`
	NextSevenDays              []string `json:"next_7_days"`
}

// Scorecard is the structured evaluation of a full pitch conversation.
type Scorecard struct {
	OneSentence  string   `json:"one_sentence"`
	Scores       Scores   `json:"scores"`
	TopStrengths []string `json:"top_strengths"`
	TopRisks     []Risk   `json:"top_risks"`
	Feedback     Feedback `json:"yc_style_feedback"`
}

// Entry is one finalized transcript line submitted for evaluation.
type Entry struct {
	Speaker string `json:"speaker"` // "user" or "investor"
	Text    string `json:"text"`
}
