package sync

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/openmined/appsync/internal/snapi"
)

var ErrUnreadablePayload = errors.New("sync: unreadable update payload")

// ConflictError reports that the remote record changed since it was last tracked and
// its content differs from the local build.
type ConflictError struct {
	UpdatedOn string
	UpdatedBy string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Local record version is out of date. \nRecord was last updated on %s by %s", e.UpdatedOn, e.UpdatedBy)
}

// checkConflict compares the remote record against the local build when the tracked version
// is stale. A record without a tracked version is never checked.
func checkConflict(ctx context.Context, remote snapi.Store, rec *BuildableRecord, built map[string]string) error {
	primary := rec.PrimaryField()
	if primary == nil || primary.Version == "" {
		return nil
	}

	latest, err := snapi.CurrentVersion(ctx, remote, rec.Table, rec.SysID)
	if errors.Is(err, snapi.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("version check: %w", err)
	}

	if latest.ID == primary.Version {
		return nil
	}

	conflict := &ConflictError{UpdatedOn: latest.UpdatedOn, UpdatedBy: latest.UpdatedBy}

	remoteFields, err := parseUpdatePayload(latest.Payload, rec.Table)
	if err != nil {
		slog.Debug("conflict check payload", "record", rec.Summary(), "error", err)
		return conflict
	}

	compared := 0
	for field, local := range built {
		remoteContent, ok := remoteFields[field]
		if !ok {
			continue
		}
		compared++
		if normalizeLineEndings(remoteContent) != normalizeLineEndings(local) {
			return conflict
		}
	}
	if compared == 0 {
		return conflict
	}

	slog.Info("versions out of date, but content matches", "record", rec.Summary(), "tracked", primary.Version, "remote", latest.ID)
	return nil
}

// parseUpdatePayload extracts the field values of the record element named table from an
// update payload: <record_update><table><field>value</field>...</table></record_update>
func parseUpdatePayload(payload, table string) (map[string]string, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrUnreadablePayload
	}

	dec := xml.NewDecoder(strings.NewReader(payload))
	dec.Strict = false

	fields := make(map[string]string)
	depth := 0
	inRecord := false
	found := false
	var field string
	var value strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadablePayload, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 2 && !found && t.Name.Local == table:
				inRecord = true
				found = true
			case depth == 3 && inRecord:
				field = t.Name.Local
				value.Reset()
			}
		case xml.CharData:
			if inRecord && depth == 3 {
				value.Write(t)
			}
		case xml.EndElement:
			if inRecord && depth == 3 {
				fields[field] = value.String()
			}
			if depth == 2 && inRecord {
				inRecord = false
			}
			depth--
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: no %s element", ErrUnreadablePayload, table)
	}
	return fields, nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}
