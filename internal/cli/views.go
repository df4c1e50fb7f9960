package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
)

// Text renderings of command results. JSON output encodes the embedded
// values directly.

type recordView struct {
	*casefile.Record
}

func (v recordView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case %s created\n", v.ID)
	fmt.Fprintf(&b, "  status:   %s\n", v.Status)
	fmt.Fprintf(&b, "  phase:    %s\n", v.Phase)
	fmt.Fprintf(&b, "  sections: %s\n", strings.Join(v.Sections(), ", "))
	return b.String()
}

type outcomeView struct {
	engine.Outcome
}

func (v outcomeView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case %s: %s", v.CaseID, v.Status)
	if v.Noop {
		b.WriteString(" (unchanged)")
	}
	fmt.Fprintf(&b, "\n  writes: %d\n", v.WriteCount)

	if len(v.Phases) > 0 {
		tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  PHASE\tOPERATION\tRESULT\tATTEMPTS")
		for _, p := range v.Phases {
			for _, r := range p.Completed {
				fmt.Fprintf(tw, "  %s\t%s\tok\t%d\n", p.Phase, r.Name, r.Attempts)
			}
			for _, r := range p.Failed {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\n", p.Phase, r.Name, r.Kind, r.Attempts)
			}
		}
		tw.Flush()
	}
	writeFailures(&b, v.Failures)
	return b.String()
}

func writeFailures(b *strings.Builder, failures []engine.Failure) {
	if len(failures) == 0 {
		return
	}
	b.WriteString("  failed operations:\n")
	for _, f := range failures {
		fmt.Fprintf(b, "    %s [%s]: %s\n", f.Operation, f.Kind, f.Message)
	}
}

type inspectView struct {
	engine.Inspection
	Audit []casefile.AuditEntry `json:"audit,omitempty"`
}

func (v inspectView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case %s\n", v.CaseID)
	fmt.Fprintf(&b, "  status:         %s\n", v.Status)
	if v.SuspendedFrom != "" {
		fmt.Fprintf(&b, "  suspended from: %s\n", v.SuspendedFrom)
	}
	fmt.Fprintf(&b, "  phase:          %s\n", v.Phase)
	fmt.Fprintf(&b, "  writes:         %d (counted by this process: %d)\n", v.WriteCount, v.CountedWrites)
	fmt.Fprintf(&b, "  audit entries:  %d (live %d, ordered %t)\n", v.AuditLen, v.LiveAudit, v.AuditOrdered)
	fmt.Fprintf(&b, "  sections:       %s\n", strings.Join(v.Sections, ", "))
	writeFailures(&b, v.Failures)

	if len(v.Audit) > 0 {
		tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  SEQ\tTIME\tACTOR\tACTION\tSUMMARY")
		for _, e := range v.Audit {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", e.Seq, e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Actor, e.Action, e.Summary)
		}
		tw.Flush()
	}
	return b.String()
}

func (v listView) String() string {
	var b strings.Builder
	if len(v.Cases) == 0 {
		b.WriteString("No cases\n")
	} else {
		tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tPHASE\tWRITES\tUPDATED")
		for _, c := range v.Cases {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Status, c.Phase, c.WriteCount, c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		tw.Flush()
	}
	if st := v.Storage; st != nil {
		fmt.Fprintf(&b, "Storage: %d active (%s), %d archived (%s), %d backups (%s), total %s\n",
			st.ActiveFiles, humanize.Bytes(uint64(st.ActiveBytes)),
			st.ArchiveFiles, humanize.Bytes(uint64(st.ArchiveBytes)),
			st.BackupFiles, humanize.Bytes(uint64(st.BackupBytes)),
			humanize.Bytes(uint64(st.TotalBytes())))
	}
	return b.String()
}
