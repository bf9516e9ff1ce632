package domain

import "time"

// IntakeStatus is one node of the intake status DAG.
type IntakeStatus string

// Status DAG: uploading → pending → extracting → parsing → mapping →
// storing → indexing → completed, with failed reachable from any
// non-terminal state. Transitions are monotone.
const (
	StatusUploading  IntakeStatus = "uploading"
	StatusPending    IntakeStatus = "pending"
	StatusExtracting IntakeStatus = "extracting"
	StatusParsing    IntakeStatus = "parsing"
	StatusMapping    IntakeStatus = "mapping"
	StatusStoring    IntakeStatus = "storing"
	StatusIndexing   IntakeStatus = "indexing"
	StatusCompleted  IntakeStatus = "completed"
	StatusFailed     IntakeStatus = "failed"
)

// statusOrder indexes the forward path of the DAG.
var statusOrder = []IntakeStatus{
	StatusUploading, StatusPending, StatusExtracting, StatusParsing,
	StatusMapping, StatusStoring, StatusIndexing, StatusCompleted,
}

// Rank returns the position of s on the forward path. Failed ranks above
// every non-terminal state so the conditional store update cannot resurrect
// a failed intake; unknown states rank -1.
func (s IntakeStatus) Rank() int {
	if s == StatusFailed {
		return len(statusOrder)
	}
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether s is completed or failed.
func (s IntakeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether a transition s → next is legal: strictly
// forward on the path, or to failed from any non-terminal state. Replaying
// the current status is treated as a no-op by the store, not an error.
func (s IntakeStatus) CanAdvanceTo(next IntakeStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.Rank() > s.Rank() && next.Rank() >= 0
}

// Progress derives the caller-facing progress fraction: index of the
// current state on the forward path over the path length; 1 on completed,
// 0 on failed.
func (s IntakeStatus) Progress() float64 {
	if s == StatusCompleted {
		return 1
	}
	if s == StatusFailed {
		return 0
	}
	r := s.Rank()
	if r < 0 {
		return 0
	}
	return float64(r) / float64(len(statusOrder)-1)
}

// DocumentType classifies an input document for extraction routing.
type DocumentType string

// Document classes produced by the router.
const (
	DocDOCX        DocumentType = "DOCX"
	DocPDFText     DocumentType = "PDF_TEXT"
	DocPDFScanned  DocumentType = "PDF_SCANNED"
	DocImage       DocumentType = "IMAGE"
	DocUnsupported DocumentType = "UNSUPPORTED"
)

// ExtractionResult is the output of the extraction stage (direct or OCR).
type ExtractionResult struct {
	Text         string       `json:"text"`
	Method       string       `json:"method"` // direct_docx|direct_pdf|ocr_fusion
	DocumentType DocumentType `json:"document_type"`
	Confidence   float64      `json:"confidence"`
	PageCount    int          `json:"page_count,omitempty"`
	HasImages    bool         `json:"has_images,omitempty"`
	OCRDetails   *OCRDetails  `json:"ocr_details,omitempty"`
}

// OCRDetails captures the fusion diagnostics of the triple-OCR engine.
type OCRDetails struct {
	AgreementRate float64            `json:"agreement_rate"`
	Arbitrated    bool               `json:"arbitrated"`
	WinningEngine string             `json:"winning_engine,omitempty"`
	Contributions map[string]float64 `json:"contributions,omitempty"`
	EngineErrors  map[string]string  `json:"engine_errors,omitempty"`
}

// StageCounts summarizes per-section record counts written for a candidate,
// split into confidently matched and unmatched items where applicable.
type StageCounts struct {
	Education       int `json:"education"`
	Experience      int `json:"experience"`
	Skills          int `json:"skills"`
	Languages       int `json:"languages"`
	Certifications  int `json:"certifications"`
	Training        int `json:"training"`
	DrivingLicenses int `json:"driving_licenses"`
	Software        int `json:"software"`
	Unmatched       int `json:"unmatched"`
}

// WriteVerification is the post-write re-count comparison (§ relational
// writer). History/skill mismatches are errors; the rest are warnings.
type WriteVerification struct {
	OK         bool              `json:"ok"`
	Errors     []string          `json:"errors,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Expected   StageCounts       `json:"expected"`
	Actual     StageCounts       `json:"actual"`
	Unmatched  map[string]int    `json:"unmatched,omitempty"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// IntakeRecord is the per-upload state document in the key-value store,
// keyed by correlation id. It is the single source of truth for in-flight
// jobs; the pipeline never deletes it.
type IntakeRecord struct {
	CVID      string       `json:"cv_id"` // equals the correlation id
	Status    IntakeStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
	CreatedAt time.Time    `json:"created_at"`

	S3Key    string `json:"s3_key"`
	Filename string `json:"filename"`

	ExtractionMethod     string  `json:"extraction_method,omitempty"`
	ExtractionConfidence float64 `json:"extraction_confidence,omitempty"`
	TextKey              string  `json:"text_key,omitempty"`
	ParsedKey            string  `json:"parsed_key,omitempty"`

	CandidateID       string             `json:"candidate_id,omitempty"`
	CompletenessScore float64            `json:"completeness_score,omitempty"`
	QualityLevel      string             `json:"quality_level,omitempty"`
	Counts            *StageCounts       `json:"counts,omitempty"`
	WriteVerification *WriteVerification `json:"write_verification,omitempty"`
	CompletenessAudit string             `json:"completeness_audit,omitempty"`
	IndexingError     string             `json:"indexing_error,omitempty"`

	Error      string `json:"error,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`
}

// StatusUpdate is one transition applied to an intake record. Zero-valued
// auxiliary fields leave the stored fields untouched (disjoint-field
// preservation per the store contract).
type StatusUpdate struct {
	Status               IntakeStatus
	ExtractionMethod     string
	ExtractionConfidence float64
	TextKey              string
	ParsedKey            string
	CandidateID          string
	CompletenessScore    float64
	QualityLevel         string
	Counts               *StageCounts
	WriteVerification    *WriteVerification
	CompletenessAudit    string
	IndexingError        string
	Error                string
	FailedStep           string
}
