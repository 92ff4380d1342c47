package schema

// Annotation is a rough DRRP annotation from regex-based detection, pulled
// from the partner service's outbox and stored in drrp_annotations.
type Annotation struct {
	LawName    string  `json:"law_name"`
	Provision  string  `json:"provision"`
	DrrpType   string  `json:"drrp_type"`
	SourceText string  `json:"source_text"`
	Confidence float32 `json:"confidence"`
	// ISO 8601 timestamp string.
	ScrapedAt string `json:"scraped_at"`
}

// PolishedEntry is an AI-refined DRRP provision produced by the drrp-polisher
// micro-app, stored in polished_drrp and pushed to the partner's inbox.
type PolishedEntry struct {
	LawName    string  `json:"law_name"`
	Provision  string  `json:"provision"`
	DrrpType   string  `json:"drrp_type"`
	Holder     string  `json:"holder"`
	Text       string  `json:"text"`
	Qualifier  *string `json:"qualifier"`
	ClauseRef  string  `json:"clause_ref"`
	Confidence float32 `json:"confidence"`
	// ISO 8601 timestamp string.
	PolishedAt string `json:"polished_at"`
	Model      string `json:"model"`
}
