package events

import (
	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
)

// Kind identifies one of the lifecycle notifications of a draft run.
type Kind string

const (
	KindStart      Kind = "start"
	KindProgress   Kind = "progress"
	KindProcessing Kind = "processing"
	KindSuccess    Kind = "success"
	KindError      Kind = "error"
)

// Kinds lists every event kind in lifecycle order.
var Kinds = []Kind{KindStart, KindProgress, KindProcessing, KindSuccess, KindError}

// Event is implemented by every notification published on the Bus.
type Event interface {
	Kind() Kind
	DraftKey() string
}

type StartEvent struct {
	Key string `json:"key"`
}

// ProgressEvent is published once per acknowledged chunk.
type ProgressEvent struct {
	Key        string `json:"key"`
	File       string `json:"file"`
	FileIndex  int    `json:"fileIndex"`
	TotalFiles int    `json:"totalFiles"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
}

type ProcessingEvent struct {
	Key string `json:"key"`
}

type SuccessEvent struct {
	Key      string        `json:"key"`
	Response *model.Course `json:"response"`
}

type ErrorEvent struct {
	Key       string      `json:"key"`
	Message   string      `json:"message"`
	ErrorType apperr.Kind `json:"errorType"`
}

func (StartEvent) Kind() Kind      { return KindStart }
func (ProgressEvent) Kind() Kind   { return KindProgress }
func (ProcessingEvent) Kind() Kind { return KindProcessing }
func (SuccessEvent) Kind() Kind    { return KindSuccess }
func (ErrorEvent) Kind() Kind      { return KindError }

func (e StartEvent) DraftKey() string      { return e.Key }
func (e ProgressEvent) DraftKey() string   { return e.Key }
func (e ProcessingEvent) DraftKey() string { return e.Key }
func (e SuccessEvent) DraftKey() string    { return e.Key }
func (e ErrorEvent) DraftKey() string      { return e.Key }
