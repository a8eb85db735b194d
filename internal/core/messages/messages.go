// Package messages renders client-facing error keys into English text.
package messages

import "fmt"

const (
	FileSizeExceeded       = "ingestion.error.file.size.exceeded"
	FileSizeInvalid        = "ingestion.error.file.size.invalid"
	StorageQuotaExceeded   = "ingestion.error.storage.quota.exceeded"
	MonthlyLimitExceeded   = "ingestion.error.monthly.limit.exceeded"
	ConcurrentJobsExceeded = "ingestion.error.concurrent.jobs.exceeded"

	ContentEmpty         = "ingestion.error.content.empty"
	ContentTooShort      = "ingestion.error.content.too.short"
	ContentTooLarge      = "ingestion.error.content.too.large"
	UnsupportedType      = "ingestion.error.unsupported.type"
	InvalidURL           = "ingestion.error.invalid.url"
	InvalidURLScheme     = "ingestion.error.invalid.url.scheme"
	InvalidFeedURL       = "ingestion.error.invalid.feed.url"
	InvalidFeedURLScheme = "ingestion.error.invalid.feed.url.scheme"
	FolderNotZip         = "ingestion.error.folder.not.zip"
	BatchEmpty           = "ingestion.error.batch.empty"
	BatchTooLarge        = "ingestion.error.batch.too.large"
	BatchNoFiles         = "ingestion.error.batch.no.files"
	QAPairsEmpty         = "ingestion.error.qa.pairs.empty"
	QAPairsTooMany       = "ingestion.error.qa.pairs.too.many"
	QAQuestionEmpty      = "ingestion.error.qa.question.empty"
	QAAnswerEmpty        = "ingestion.error.qa.answer.empty"

	JobNotFound     = "ingestion.error.job.not.found"
	JobNotOwned     = "ingestion.error.job.not.owned"
	JobNotUploading = "ingestion.error.job.not.uploading"
	JobNotBatch     = "ingestion.error.job.not.batch"
	CannotRetry     = "ingestion.error.cannot.retry"
	CannotCancel    = "ingestion.error.cannot.cancel"
)

var catalog = map[string]string{
	FileSizeExceeded:       "File size %v bytes exceeds the maximum of %v bytes for your plan",
	FileSizeInvalid:        "File size of %v must be a positive number of bytes: %v",
	StorageQuotaExceeded:   "Storage quota exceeded: %v of %v bytes used",
	MonthlyLimitExceeded:   "Monthly ingestion limit of %v jobs reached",
	ConcurrentJobsExceeded: "Too many concurrent jobs: limit is %v",

	ContentEmpty:         "Content must not be empty",
	ContentTooShort:      "Content must be at least %v characters",
	ContentTooLarge:      "Content exceeds the maximum of %v characters",
	UnsupportedType:      "Unsupported file type: %v",
	InvalidURL:           "Invalid URL: %v",
	InvalidURLScheme:     "URL must use http or https: %v",
	InvalidFeedURL:       "Invalid feed URL: %v",
	InvalidFeedURLScheme: "Feed URL must use http or https: %v",
	FolderNotZip:         "Folder uploads must be a .zip archive: %v",
	BatchEmpty:           "Batch must contain at least one file",
	BatchTooLarge:        "Batch contains %v files; the maximum is %v",
	BatchNoFiles:         "Batch %v has no files awaiting upload",
	QAPairsEmpty:         "At least one Q&A pair is required",
	QAPairsTooMany:       "Too many Q&A pairs: %v; the maximum is %v",
	QAQuestionEmpty:      "Question %v is empty",
	QAAnswerEmpty:        "Answer %v is empty",

	JobNotFound:     "Job not found: %v",
	JobNotOwned:     "Job %v does not belong to your organization",
	JobNotUploading: "Job %v is not awaiting an upload",
	JobNotBatch:     "Job %v is not a batch import",
	CannotRetry:     "Job %v cannot be retried",
	CannotCancel:    "Job %v cannot be cancelled in status %v",
}

// Render formats key with args. Unknown keys render as the key itself.
func Render(key string, args ...any) string {
	format, ok := catalog[key]
	if !ok {
		return key
	}
	return fmt.Sprintf(format, args...)
}
