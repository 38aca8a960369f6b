// Package knowledge implements the retrieval responder: given a player
// query, it runs the hybrid ranker over the session's knowledge pack and
// surfaces the relevant snippets as narrator context.
package knowledge

import (
	"context"
	"strconv"
	"strings"

	know "github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/internal/retrieval"
)

// Name is the responder's registry key.
const Name = "knowledge"

// Metadata keys set on successful envelopes.
const (
	// MetaCount is the number of snippets retrieved.
	MetaCount = "count"

	// MetaUIDs is a comma-separated list of retrieved snippet uids.
	MetaUIDs = "uids"
)

// Responder retrieves background knowledge for the current turn.
//
// Input slice fields read: Query (falling back to Action), Location, Region,
// Language.
type Responder struct {
	ranker *retrieval.Ranker
	pack   *know.Pack
}

// Compile-time interface check.
var _ responder.Responder = (*Responder)(nil)

// New creates a knowledge responder over the given immutable pack.
func New(ranker *retrieval.Ranker, pack *know.Pack) *Responder {
	return &Responder{ranker: ranker, pack: pack}
}

// Name implements [responder.Responder].
func (*Responder) Name() string { return Name }

// Process ranks the pack against the slice's query and returns the matched
// snippet texts, one per line, in the session language. Retrieval never
// fails: an empty result is a successful envelope with MetaCount "0".
func (k *Responder) Process(ctx context.Context, in responder.Slice) responder.Envelope {
	return responder.Run(ctx, Name, func(ctx context.Context) (responder.Envelope, error) {
		query := in.Query
		if query == "" {
			query = in.Action
		}

		results := k.ranker.Rank(ctx, k.pack, retrieval.Query{
			Text:     query,
			Location: in.Location,
			Region:   in.Region,
		})

		lang := in.Language
		if lang == "" {
			lang = k.pack.DefaultLanguage
		}

		var (
			lines []string
			uids  []string
		)
		for _, r := range results {
			if text := r.Snippet.Text(lang); text != "" {
				lines = append(lines, text)
			}
			uids = append(uids, strconv.Itoa(r.Snippet.UID))
		}

		return responder.Envelope{
			Content: strings.Join(lines, "\n"),
			Metadata: map[string]string{
				MetaCount: strconv.Itoa(len(results)),
				MetaUIDs:  strings.Join(uids, ","),
			},
		}, nil
	})
}
