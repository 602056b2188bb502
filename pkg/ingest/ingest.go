// Package ingest runs the ingestion pass: read lines, parse, resolve user
// agents, insert batches.
package ingest

import (
	"bufio"
	"context"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"loganalyzer/pkg/parser"
	"loganalyzer/pkg/storage"
	"loganalyzer/pkg/useragent"
)

const defaultBatchSize = 500

// Summary is the operator-visible outcome of one ingestion pass. Accepted is
// the number of lines that parsed and were handed to the store; Rejected
// counts malformed lines, which are logged and skipped, never fatal.
type Summary struct {
	Accepted int
	Rejected int
}

type Processor struct {
	db       storage.Storage
	resolver *useragent.Resolver

	// BatchSize caps how many entries accumulate before a flush.
	BatchSize int
}

func NewProcessor(db storage.Storage) *Processor {
	return &Processor{
		db:        db,
		resolver:  useragent.NewResolver(db),
		BatchSize: defaultBatchSize,
	}
}

// ProcessFile ingests one access-log file.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	return p.Process(ctx, f)
}

// Process ingests access-log lines from r, one record per line. Parse
// rejections are counted and continue with the next line; storage errors
// abort the pass.
func (p *Processor) Process(ctx context.Context, r io.Reader) (sum Summary, err error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	batch := make([]storage.Entry, 0, batchSize)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, err := parser.Parse(line)
		if err != nil {
			sum.Rejected++
			log.Warnf("[ingest] rejected line: %v | %s", err, line)
			continue
		}

		uaID, err := p.resolver.Resolve(ctx, rec.UserAgent)
		if err != nil {
			return sum, err
		}

		batch = append(batch, storage.Entry{Record: rec, UserAgentID: uaID})
		sum.Accepted++

		if len(batch) >= batchSize {
			if err := p.db.InsertEntries(ctx, batch); err != nil {
				return sum, err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return sum, err
	}

	if len(batch) > 0 {
		if err := p.db.InsertEntries(ctx, batch); err != nil {
			return sum, err
		}
	}

	log.Debugf("[ingest] accepted %d lines, rejected %d lines", sum.Accepted, sum.Rejected)
	return sum, nil
}
