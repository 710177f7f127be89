// Package content reads searchable records from the CMS for keyword
// search. Relevance scoring happens in the search use case; this layer
// only fetches candidate records matching the query text.
package content

import (
	"context"
	"fmt"
	"time"

	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/smartmode"
	"github.com/chabad-mafteach/mafteach/internal/transport/directus"
)

// cms is the consumer interface for the Directus client.
type cms interface {
	ListItems(ctx context.Context, collection string, q directus.Query) ([]map[string]any, error)
}

// fieldSpec describes how a collection maps onto the record shape.
type fieldSpec struct {
	title         string
	titleEN       string
	translit      string
	slug          string
	typ           string
	texts         []string
	publishedOnly bool
}

var specs = map[collection.Name]fieldSpec{
	collection.Topics: {
		title:    "canonical_title",
		titleEN:  "canonical_title_en",
		translit: "canonical_title_transliteration",
		slug:     "slug",
		typ:      "topic_type",
		texts: []string{
			"description", "definition_positive", "definition_negative",
			"overview", "practical_takeaways",
		},
		publishedOnly: true,
	},
	collection.Statements: {
		title: "text",
		typ:   "statement_type",
	},
	collection.Documents: {
		title: "title",
		typ:   "doc_type",
	},
	collection.Locations: {
		title: "name",
		texts: []string{"description"},
	},
}

// Repo fetches keyword search candidates from the CMS.
type Repo struct {
	cms cms
}

// New creates a content repository.
func New(c cms) *Repo {
	return &Repo{cms: c}
}

// Search returns records from one collection whose searchable fields
// contain the query text, most recently updated first.
func (r *Repo) Search(
	ctx context.Context, col collection.Name, query string, limit, offset int,
) ([]result.Record, error) {
	spec, ok := specs[col]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", col)
	}

	items, err := r.cms.ListItems(ctx, string(col), directus.Query{
		Fields: spec.fetchFields(),
		Filter: spec.filter(query),
		Sort:   []string{"-date_updated", spec.title},
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", col, err)
	}

	records := make([]result.Record, 0, len(items))
	for _, item := range items {
		records = append(records, spec.toRecord(item))
	}
	return records, nil
}

// fetchFields lists the CMS fields the record shape needs.
func (s fieldSpec) fetchFields() []string {
	fields := []string{"id", s.title, "date_updated"}
	for _, f := range []string{s.titleEN, s.translit, s.slug, s.typ} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return append(fields, s.texts...)
}

// filter builds the _or icontains filter. Hebrew queries list the Hebrew
// title field first, mirroring the UI's language-optimized ordering;
// English queries lead with the English title.
func (s fieldSpec) filter(query string) map[string]any {
	var conds []map[string]any

	titleConds := []map[string]any{directus.IContains(s.title, query)}
	if s.titleEN != "" {
		en := directus.IContains(s.titleEN, query)
		if smartmode.IsHebrew(query) {
			titleConds = append(titleConds, en)
		} else {
			titleConds = append([]map[string]any{en}, titleConds...)
		}
	}
	conds = append(conds, titleConds...)

	if s.translit != "" {
		conds = append(conds, directus.IContains(s.translit, query))
	}
	if s.typ != "" {
		conds = append(conds, directus.IContains(s.typ, query))
	}
	for _, f := range s.texts {
		conds = append(conds, directus.IContains(f, query))
	}

	filter := directus.Or(conds...)
	if s.publishedOnly {
		filter = directus.And(filter, directus.Eq("status", "published"))
	}
	return filter
}

func (s fieldSpec) toRecord(item map[string]any) result.Record {
	rec := result.Record{
		ID:       stringField(item, "id"),
		Title:    stringField(item, s.title),
		TitleEN:  stringField(item, s.titleEN),
		Translit: stringField(item, s.translit),
		Slug:     stringField(item, s.slug),
		Type:     stringField(item, s.typ),
		Texts:    make(map[string]string, len(s.texts)),
	}
	if raw := stringField(item, "date_updated"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			rec.UpdatedAt = ts
		}
	}
	for _, f := range s.texts {
		if v := stringField(item, f); v != "" {
			rec.Texts[f] = v
		}
	}
	return rec
}

// stringField reads a string value from a raw CMS item; non-string and
// missing values become "". IDs may arrive as numbers.
func stringField(item map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := item[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
