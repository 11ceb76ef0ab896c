package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

const hiddenAmount = "***"

func renderRecords(w io.Writer, records []coordinator.Record) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Category", "Status", "Amount", "Created")
	for _, r := range records {
		amount := hiddenAmount
		if v, ok := r.Amount(); ok {
			amount = strconv.FormatUint(v, 10)
		}
		if err := table.Append([]string{
			r.ID,
			r.Name,
			string(r.Category),
			string(r.Status),
			amount,
			r.CreatedAt.Format(time.DateOnly),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderStats(w io.Writer, s coordinator.Stats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Total", "Active", "Verified", "Verified amount")
	if err := table.Append([]string{
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Active),
		strconv.Itoa(s.Verified),
		strconv.FormatUint(s.TotalAmount, 10),
	}); err != nil {
		return err
	}
	return table.Render()
}

func renderHistory(w io.Writer, entries []coordinator.HistoryEntry) error {
	table := tablewriter.NewWriter(w)
	table.Header("Time", "Kind", "Record", "Detail")
	for _, e := range entries {
		var detail string
		switch {
		case e.Create != nil:
			detail = e.Create.Name
		case e.Decrypt != nil:
			detail = fmt.Sprintf("value %d", e.Decrypt.Value)
		}
		if err := table.Append([]string{
			e.Timestamp.Format(time.DateTime),
			string(e.Kind),
			e.RecordID,
			detail,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
