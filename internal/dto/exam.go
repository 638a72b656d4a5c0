package dto

import "time"

// SyncClassExamsRequest replaces the exam types assigned to a class.
type SyncClassExamsRequest struct {
	ExamTypeIDs []string `json:"exam_type_ids" validate:"dive,required"`
}

// CreateExamRequest schedules a subject paper.
type CreateExamRequest struct {
	ClassID      string     `json:"class_id" validate:"required"`
	ExamTypeID   string     `json:"exam_type_id" validate:"required"`
	SubjectName  string     `json:"subject_name" validate:"required,max=128"`
	MaxMarks     float64    `json:"max_marks" validate:"gt=0"`
	PassingMarks float64    `json:"passing_marks" validate:"gte=0,ltfield=MaxMarks"`
	ExamDate     *time.Time `json:"exam_date"`
}

// MarkEntry is a single student's score.
type MarkEntry struct {
	StudentID string  `json:"student_id" validate:"required"`
	Marks     float64 `json:"marks"`
}

// UploadMarksRequest uploads a batch of marks for one exam.
type UploadMarksRequest struct {
	Entries []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// InvalidMark names a student whose score is out of range.
type InvalidMark struct {
	StudentID string  `json:"student_id"`
	Marks     float64 `json:"marks"`
}

// OutOfRangeMarks lists entries outside [0, maxMarks].
func OutOfRangeMarks(maxMarks float64, entries []MarkEntry) []InvalidMark {
	var invalid []InvalidMark
	for _, entry := range entries {
		if entry.Marks < 0 || entry.Marks > maxMarks {
			invalid = append(invalid, InvalidMark{StudentID: entry.StudentID, Marks: entry.Marks})
		}
	}
	return invalid
}
