package models

// ViewedRecord is an access-log row recording when a cached course was last
// viewed. There is exactly one row per course id; each view overwrites the
// previous timestamp. Rows are only used to rank recently-viewed results.
type ViewedRecord struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	ViewedAt int64  `db:"viewed_at" json:"viewed_at"`
}

// TableName returns the table name for ViewedRecord.
func (ViewedRecord) TableName() string {
	return "viewed_records"
}
