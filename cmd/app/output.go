package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatMaybeUint(v *uint) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// formatValue renders one projected field. JSON numbers arrive as float64 and
// collections as []any.
func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "-"
	case string:
		if value == "" {
			return "-"
		}
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, formatValue(item))
		}
		if len(parts) == 0 {
			return "-"
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(value)
	}
}

func printElements(spec domain.KindSpec, items []map[string]any) {
	headers := []string{"ID", "NAME", "BIRTH_DATE", "DEATH_DATE"}
	if spec.HasWebsite {
		headers = append(headers, "WEBSITE")
	}
	sides := domain.SidesOf(spec.Kind)
	for _, side := range sides {
		headers = append(headers, strings.ToUpper(side.Collection))
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := []string{formatValue(item["id"]), formatValue(item["name"]), formatValue(item["birthDate"]), formatValue(item["deathDate"])}
		if spec.HasWebsite {
			row = append(row, formatValue(item["websiteUrl"]))
		}
		for _, side := range sides {
			row = append(row, formatValue(item[side.Collection]))
		}
		rows = append(rows, row)
	}
	printTable(headers, rows)
}

func printElement(spec domain.KindSpec, reply elementReply) {
	keys := make([]string, 0, len(reply.Element))
	for key := range reply.Element {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := [][2]string{{"kind", spec.Singular}}
	for _, key := range keys {
		rows = append(rows, [2]string{key, formatValue(reply.Element[key])})
	}
	rows = append(rows, [2]string{"etag", reply.ETag})
	printKV(rows)
}

func printUsers(items []domain.User) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Username,
			item.Email,
			string(item.Role),
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "USERNAME", "EMAIL", "ROLE", "CREATED_AT"}, rows)
}

func printAuditRecords(items []domain.AuditRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		actor := item.ActorUsername
		if actor == "" {
			actor = formatMaybeUint(item.ActorUserID)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Action,
			item.TargetKind,
			strconv.FormatUint(uint64(item.TargetID), 10),
			actor,
			item.Metadata,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_KIND", "TARGET_ID", "ACTOR", "METADATA", "AT"}, rows)
}
