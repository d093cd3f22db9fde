package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarpras-dashboard/sarpras-sync/entity"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/identity"
	"github.com/sarpras-dashboard/sarpras-sync/source"
)

// SourceReport describes one source without writing anything.
type SourceReport struct {
	Source  string
	Origin  string
	Shape   string
	Records int
	Err     error

	// Identity coverage.
	NPSN int
	NKD  int
	None int

	Entities map[string]*Counts
}

// Inspect reports shape, identity coverage and mapper outcomes for fetched
// docs without writing. Mapper outcomes are also counted on st.
func Inspect(st *State, mappers []entity.Mapper, docs []source.Document, skipZero bool) []SourceReport {
	for _, m := range mappers {
		st.Summary.Declare(m.Name())
	}

	reports := make([]SourceReport, 0, len(docs))
	for _, doc := range docs {
		rep := SourceReport{
			Source:   doc.Source.Name,
			Origin:   doc.Origin,
			Shape:    doc.Shape,
			Records:  len(doc.Records),
			Err:      doc.Err,
			Entities: make(map[string]*Counts, len(mappers)),
		}
		if doc.Err != nil {
			st.Inc(CounterSourcesUnavailable, 1)
		}

		in := entity.Input{Jenjang: doc.Source.Level(), SkipZero: skipZero}
		outcomes := make(recordOutcomes, len(doc.Records))
		for i, rec := range doc.Records {
			switch identity.KindOf(identity.Resolve(rec, "")) {
			case identity.KindNPSN:
				rep.NPSN++
			case identity.KindNKD:
				rep.NKD++
			default:
				rep.None++
				st.Inc(CounterNoIdentity, 1)
			}

			for _, m := range mappers {
				c, ok := rep.Entities[m.Name()]
				if !ok {
					c = &Counts{}
					rep.Entities[m.Name()] = c
				}
				o := inspectRecord(st, m, rec, in)
				c.add(o, 1)
				st.Summary.Entity(m.Name(), o, 1)
				outcomes.note(i, o)
			}
		}
		outcomes.flush(st.Summary, func(int) string { return doc.Source.Name })
		reports = append(reports, rep)
	}
	return reports
}

func inspectRecord(st *State, m entity.Mapper, rec hub.Raw, in entity.Input) Outcome {
	rows, err := entity.Apply(m, rec, in)
	switch {
	case err == nil:
	case entity.IsSkip(err):
		if errors.Is(err, entity.ErrZeroCounts) {
			st.Inc(CounterZeroSkipped, 1)
		}
		return Skip
	default:
		return Fail
	}

	cols := make([]map[string]any, 0, len(rows))
	for _, c := range rows {
		row := c.Columns()
		row[m.OwnerKey()] = "-"
		cols = append(cols, row)
	}
	if res := hub.ValidateRows(cols, hub.DefaultValidationOptions(m.ConflictKey())); !res.IsValid() {
		st.Inc(CounterInvalidRows, len(res.Errors))
		return Fail
	}
	return OK
}

// PrintInspection writes one block per source.
func PrintInspection(w io.Writer, reports []SourceReport, mappers []entity.Mapper) {
	for _, rep := range reports {
		if rep.Err != nil {
			fmt.Fprintf(w, "source=%s unavailable: %v\n", rep.Source, rep.Err)
			continue
		}
		fmt.Fprintf(w, "source=%s origin=%s shape=%s records=%d npsn=%d nkd=%d none=%d\n",
			rep.Source, rep.Origin, rep.Shape, rep.Records, rep.NPSN, rep.NKD, rep.None)
		for _, m := range mappers {
			c := rep.Entities[m.Name()]
			if c == nil {
				c = &Counts{}
			}
			fmt.Fprintf(w, "  %-16s OK=%d SKIP=%d FAIL=%d\n", m.Name(), c.OK, c.Skip, c.Fail)
		}
	}
}
