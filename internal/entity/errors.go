package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownDevice      = errors.New("unknown device")
	ErrUnknownCompany     = errors.New("unknown company")
	ErrOutOfOrderUpdate   = errors.New("out-of-order location update")
	ErrStorageFailure     = errors.New("storage failure")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidShape       = errors.New("invalid shape parameters")
	ErrZoneNotFound       = errors.New("zone not found")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrQueueTimeout       = errors.New("update queue timeout")
	ErrDispatcherClosed   = errors.New("dispatcher closed")
)

// OutOfOrderError обновление старше последнего обработанного для устройства.
type OutOfOrderError struct {
	DeviceID  string
	Timestamp time.Time
	LastSeen  time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("device %s: update at %s precedes last processed %s",
		e.DeviceID, e.Timestamp.Format(time.RFC3339Nano), e.LastSeen.Format(time.RFC3339Nano))
}

func (e *OutOfOrderError) Is(target error) bool {
	return target == ErrOutOfOrderUpdate
}

// Стадии, на которых может сорваться обработка перехода.
const (
	StageRecord = "record"
	StageRules  = "rules"
)

// TransitionFailure переход, который не удалось довести до конца.
type TransitionFailure struct {
	Transition Transition `json:"transition"`
	Stage      string     `json:"stage"`
	Err        error      `json:"-"`
	Message    string     `json:"error"`
}

// PartialError часть переходов обработана, часть нет.
type PartialError struct {
	Failed []TransitionFailure
}

func (e *PartialError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s %s (%s): %v", f.Transition.Kind, f.Transition.ZoneID, f.Stage, f.Err))
	}
	return fmt.Sprintf("%d transition(s) failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// Is сообщает об ErrStorageFailure, только если не удалось сохранить хотя бы одно событие.
func (e *PartialError) Is(target error) bool {
	if target != ErrStorageFailure {
		return false
	}
	for _, f := range e.Failed {
		if f.Stage == StageRecord {
			return true
		}
	}
	return false
}

func (e *PartialError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// NewTransitionFailure заполняет текст ошибки для сериализации.
func NewTransitionFailure(tr Transition, stage string, err error) TransitionFailure {
	return TransitionFailure{Transition: tr, Stage: stage, Err: err, Message: err.Error()}
}
