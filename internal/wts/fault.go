package wts

import (
	"errors"
	"fmt"
	"log/slog"
)

// FaultKind classifies a degraded-but-recovered condition.
type FaultKind string

const (
	KindDataFault               FaultKind = "data_fault"
	KindSelserInconsistency     FaultKind = "selser_inconsistency"
	KindUnknownProduction       FaultKind = "unknown_production"
	KindTemplateDataUnavailable FaultKind = "templatedata_unavailable"
)

var (
	errTopLevelListItem = errors.New("list item outside ul/ol")
	errMissingDataMW    = errors.New("encapsulated content without data-mw")
)

// Fault records a node the serializer could not handle the normal way.
// Faults never fail a serialization; they are logged and reported in
// the Result.
type Fault struct {
	Kind FaultKind
	Tag  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s on <%s>", f.Kind, f.Tag)
	}
	return fmt.Sprintf("%s on <%s>: %v", f.Kind, f.Tag, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func (st *State) fault(kind FaultKind, tag string, err error) {
	f := &Fault{Kind: kind, Tag: tag, Err: err}
	st.faults = append(st.faults, f)
	attrs := []any{"kind", string(kind), "tag", tag}
	if err != nil {
		attrs = append(attrs, "detail", err.Error())
	}
	st.log.Warn("serializer fault", attrs...)
}

// logger returns l or the default logger.
func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
