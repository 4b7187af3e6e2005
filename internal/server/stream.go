package server

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
	"github.com/gauthierbraillon/flaneur/internal/logging"
)

// ndjsonSink writes each page as one line and flushes it to the client.
// Headers are committed with the first page.
type ndjsonSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *ndjsonSink) start() {
	if s.started {
		return
	}
	s.w.Header().Set("Content-Type", "application/x-ndjson")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *ndjsonSink) WritePage(ctx context.Context, page []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.start()
	return s.writeLine(page)
}

func (s *ndjsonSink) writeLine(line []byte) error {
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// streamDone is the last line of a stream.
type streamDone struct {
	Done    bool            `json:"done"`
	Pages   int             `json:"pages"`
	Records int             `json:"records"`
	Error   *location.Error `json:"error,omitempty"`
}

// stream runs provider and writes one NDJSON line per page followed by a
// status line. A failure before the first page is a regular error response.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, provider string, opts location.Options) {
	flusher, _ := w.(http.Flusher)
	sink := &ndjsonSink{w: w, flusher: flusher}

	summary, err := s.agg.Stream(r.Context(), provider, opts, sink)
	if err != nil && !sink.started {
		writeError(w, provider, err)
		return
	}

	done := streamDone{Done: err == nil, Pages: summary.Pages, Records: summary.Records}
	if err != nil {
		done.Error = attributed(provider, err)
	}
	line, mErr := json.Marshal(done)
	if mErr != nil {
		logging.Ctx(r.Context()).Error().Err(mErr).Msg("failed to encode stream status")
		return
	}
	sink.start()
	if wErr := sink.writeLine(line); wErr != nil {
		logging.Ctx(r.Context()).Debug().Err(wErr).Str("provider", provider).Msg("client went away before stream end")
	}
}
