// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/restriction"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintResult prints the outcome of register or authenticate.
func (p *Printer) PrintResult(operation, user string, method credstore.Method) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"operation": operation,
			"user":      user,
			"success":   true,
			"method":    method,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "%s %s: ok (%s)\n", operation, user, method)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintStatus prints the restriction detector answers.
func (p *Printer) PrintStatus(status restriction.Status, strict bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"available":  status.Available,
			"restricted": status.Restricted,
			"condition":  status.Condition,
			"reason":     status.Reason,
			"strict":     strict,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Available:  %t\n", status.Available)
		fmt.Fprintf(p.writer, "Restricted: %t\n", status.Restricted)
		if status.Restricted {
			fmt.Fprintf(p.writer, "Condition:  %s\n", status.Condition)
			fmt.Fprintf(p.writer, "Reason:     %s\n", status.Reason)
		}
		fmt.Fprintf(p.writer, "Strict:     %t\n", strict)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// UserRow is one line of the registered-user listing.
type UserRow struct {
	User      string           `json:"user"`
	Method    credstore.Method `json:"method"`
	ID        string           `json:"credential_id"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// PrintUsers prints the registered users.
func (p *Printer) PrintUsers(rows []UserRow) error {
	switch p.format {
	case OutputFormatJSON:
		if rows == nil {
			rows = []UserRow{}
		}
		return p.printJSON(map[string]interface{}{"users": rows})
	case OutputFormatTable:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No users registered")
			return nil
		}
		fmt.Fprintf(p.writer, "%-24s %-10s %-20s %s\n", "USER", "METHOD", "CREATED", "CREDENTIAL")
		fmt.Fprintln(p.writer, strings.Repeat("-", 80))
		for _, r := range rows {
			created := "-"
			if !r.CreatedAt.IsZero() {
				created = r.CreatedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(p.writer, "%-24s %-10s %-20s %s\n", r.User, r.Method, created, r.ID)
		}
		return nil
	case OutputFormatText:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No users registered")
			return nil
		}
		fmt.Fprintln(p.writer, "Registered users:")
		for _, r := range rows {
			fmt.Fprintf(p.writer, "  - %s (%s)\n", r.User, r.Method)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
