package domain

import (
	"errors"
	"fmt"
)

// ErrorKind identifies which part of the pipeline produced an error.
type ErrorKind string

const (
	ErrKindFetch     ErrorKind = "FetchError"
	ErrKindTranscode ErrorKind = "TranscodeError"
	ErrKindVAD       ErrorKind = "VADError"
	ErrKindDenoise   ErrorKind = "DenoiseError"
	ErrKindASR       ErrorKind = "ASRError"
	ErrKindStorage   ErrorKind = "StorageError"
	ErrKindEmotion   ErrorKind = "EmotionAnalysisError"
)

// PipelineError is the single error type all pipeline failures specialize.
// The Kind carries the failure class and BatchID (when known) ties the
// error back to the batch for log correlation.
type PipelineError struct {
	Kind    ErrorKind
	BatchID string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.BatchID != "" {
		return fmt.Sprintf("[batch=%s] %s", e.BatchID, msg)
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(kind ErrorKind, batchID, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, BatchID: batchID, Message: message, Err: cause}
}

// NewFetchError reports a failure retrieving raw audio from the blob store.
func NewFetchError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindFetch, batchID, message, cause)
}

// NewTranscodeError reports an ffmpeg transcode failure.
func NewTranscodeError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindTranscode, batchID, message, cause)
}

// NewVADError reports a voice activity detection failure.
func NewVADError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindVAD, batchID, message, cause)
}

// NewDenoiseError reports a noise suppression failure.
func NewDenoiseError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindDenoise, batchID, message, cause)
}

// NewASRError reports a speech recognition failure.
func NewASRError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindASR, batchID, message, cause)
}

// NewStorageError reports a blob or status store failure.
func NewStorageError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindStorage, batchID, message, cause)
}

// NewEmotionError reports an emotion analysis failure.
func NewEmotionError(batchID, message string, cause error) *PipelineError {
	return newPipelineError(ErrKindEmotion, batchID, message, cause)
}

// KindOf returns the error kind for err, or "UnknownError" when err is not
// a PipelineError.
func KindOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "UnknownError"
}

// IsKind reports whether err is a PipelineError of one of the given kinds.
func IsKind(err error, kinds ...ErrorKind) bool {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	for _, k := range kinds {
		if pe.Kind == k {
			return true
		}
	}
	return false
}
