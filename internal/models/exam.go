package models

import "time"

// ExamType is a kind of assessment such as "Mid Term".
type ExamType struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassExam links an exam type to a class.
type ClassExam struct {
	ClassID      string    `db:"class_id" json:"class_id"`
	ExamTypeID   string    `db:"exam_type_id" json:"exam_type_id"`
	ExamTypeName string    `db:"exam_type_name" json:"exam_type_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Exam is one subject paper of an exam type for a class.
type Exam struct {
	ID           string     `db:"id" json:"id"`
	ClassID      string     `db:"class_id" json:"class_id"`
	ExamTypeID   string     `db:"exam_type_id" json:"exam_type_id"`
	SubjectName  string     `db:"subject_name" json:"subject_name"`
	MaxMarks     float64    `db:"max_marks" json:"max_marks"`
	PassingMarks float64    `db:"passing_marks" json:"passing_marks"`
	ExamDate     *time.Time `db:"exam_date" json:"exam_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Mark stores a student's score for an exam.
type Mark struct {
	ID            string    `db:"id" json:"id"`
	ExamID        string    `db:"exam_id" json:"exam_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	MarksObtained float64   `db:"marks_obtained" json:"marks_obtained"`
	UploadedBy    string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ExamResult is a mark annotated with the student's name and pass flag.
type ExamResult struct {
	StudentID     string  `db:"student_id" json:"student_id"`
	StudentName   string  `db:"student_name" json:"student_name"`
	MarksObtained float64 `db:"marks_obtained" json:"marks_obtained"`
	Passed        bool    `db:"-" json:"passed"`
}
