package task

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/cohort/core"
)

var (
	batchRequiredTag  = "batch_required"
	batchRequiredText = "batch tasks require a batch"

	batchForbiddenTag  = "batch_forbidden"
	batchForbiddenText = "course-wide tasks cannot target a batch"

	releaseDateTag  = "release_date"
	releaseDateText = "scheduled tasks require a release date"
)

func init() {
	InitValidators()
}

// InitValidators registers the task validations on core.Validate.
func InitValidators() {
	core.Validate.RegisterStructValidation(newTaskStructValidation, NewTask{})
	core.RegisterCustomTranslation(batchRequiredTag, batchRequiredText)
	core.RegisterCustomTranslation(batchForbiddenTag, batchForbiddenText)
	core.RegisterCustomTranslation(releaseDateTag, releaseDateText)
}

// newTaskStructValidation checks the task type agrees with the batch & the schedule has a date.
func newTaskStructValidation(sl validator.StructLevel) {
	nt := sl.Current().Interface().(NewTask)

	switch nt.Type {
	case TypeBatch:
		if nt.BatchID == "" {
			sl.ReportError(nt.BatchID, "batch_id", "BatchID", batchRequiredTag, "")
		}
	case TypeCourse:
		if nt.BatchID != "" {
			sl.ReportError(nt.BatchID, "batch_id", "BatchID", batchForbiddenTag, "")
		}
	}
	if nt.IsScheduled && nt.ReleaseDate == nil {
		sl.ReportError(nt.ReleaseDate, "release_date", "ReleaseDate", releaseDateTag, "")
	}
}
