// Package pipeline wires file discovery, the provider loaders, the store
// and the ledger-app dispatch into the polling ingestion loop.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/YangTianz/qianji-trans/loader"
	"github.com/YangTianz/qianji-trans/loader/alipay"
	"github.com/YangTianz/qianji-trans/loader/wechat"
	"github.com/YangTianz/qianji-trans/qianji"
	"github.com/YangTianz/qianji-trans/rules"
	"github.com/YangTianz/qianji-trans/store"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const (
	rawBillDir      = "!raw_bill"
	confirmedDir    = "confirmed"
	unconfirmedName = "unconfirmed.csv"
)

// Intervals are the polling periods of the four pipeline jobs.
type Intervals struct {
	Ingest      time.Duration
	Unconfirmed time.Duration
	Confirmed   time.Duration
	Dispatch    time.Duration
}

// Config locates the working directories and rule files.
type Config struct {
	WorkDir       string
	AccountRules  string
	ClassifyRules string
	OutputPath    string
	Intervals     Intervals
}

// Pipeline owns one store handle and the rule lists. Provider instances are
// created fresh for every batch so reconciliation state is never shared
// between polling cycles.
type Pipeline struct {
	cfg           Config
	store         *store.Store
	accountRules  []rules.Rule
	classifyRules []rules.Rule
}

// New loads both rule files and prepares the working directories.
func New(cfg Config, st *store.Store) (*Pipeline, error) {
	accountRules, err := rules.LoadFile(cfg.AccountRules)
	if err != nil {
		return nil, fmt.Errorf("account rules: %w", err)
	}
	classifyRules, err := rules.LoadFile(cfg.ClassifyRules)
	if err != nil {
		return nil, fmt.Errorf("category rules: %w", err)
	}
	for _, dir := range []string{
		cfg.WorkDir,
		filepath.Join(cfg.WorkDir, rawBillDir),
		filepath.Join(cfg.WorkDir, confirmedDir),
		filepath.Join(cfg.WorkDir, "archived", "raw_bills"),
		filepath.Join(cfg.WorkDir, "archived", "confirmed"),
		cfg.OutputPath,
	} {
		if err := EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	return &Pipeline{
		cfg:           cfg,
		store:         st,
		accountRules:  accountRules,
		classifyRules: classifyRules,
	}, nil
}

// newProviders returns fresh provider instances, one batch-state owner per
// provider per cycle.
func newProviders() []loader.Provider {
	return []loader.Provider{wechat.New(), alipay.New()}
}

// LoadFromRawBills scans the raw-bill inbox for every provider, parses
// whatever it finds and inserts previously unseen transactions with status
// Raw. Returns how many new transactions were stored.
func (p *Pipeline) LoadFromRawBills(ctx context.Context) (int, error) {
	known, err := p.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	rawDir := filepath.Join(p.cfg.WorkDir, rawBillDir)
	archiveDir := filepath.Join(p.cfg.WorkDir, "archived", "raw_bills")

	newTransactions := map[string]*qianji.Transaction{}
	for _, provider := range newProviders() {
		pattern := provider.FilePattern()
		contents, err := ScanAndMove(rawDir, archiveDir, func(name string) bool {
			return pattern.MatchString(name)
		}, "")
		if err != nil {
			return 0, err
		}

		billLoader := loader.New(provider, p.accountRules, p.classifyRules)
		for name, raw := range contents {
			decoded, err := provider.Encoding().NewDecoder().Bytes(raw)
			if err != nil {
				log.Printf("Warning: could not decode %s: %v", name, err)
				continue
			}
			for _, t := range billLoader.ParseFileContent(string(decoded)) {
				if _, ok := known[t.ID]; ok {
					continue
				}
				newTransactions[t.ID] = t
			}
		}
	}

	if len(newTransactions) == 0 {
		return 0, nil
	}
	batch := make([]*qianji.Transaction, 0, len(newTransactions))
	for _, t := range newTransactions {
		batch = append(batch, t)
	}
	if err := p.store.UpsertBatch(ctx, batch, qianji.StatusRaw); err != nil {
		return 0, err
	}
	log.Printf("loaded transactions from raw bills, new count=%d", len(batch))
	if err := p.DumpStore(ctx); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// WriteUnconfirmed writes all Raw transactions into unconfirmed.csv in the
// working directory for the user to review and classify.
func (p *Pipeline) WriteUnconfirmed(ctx context.Context) (int, error) {
	unconfirmed, err := p.store.LoadOrdered(ctx, qianji.StatusRaw)
	if err != nil {
		return 0, err
	}
	if len(unconfirmed) == 0 {
		return 0, nil
	}
	path := filepath.Join(p.cfg.WorkDir, unconfirmedName)
	if err := writeCSV(path, unconfirmed, "\n"); err != nil {
		return 0, err
	}
	log.Printf("wrote unconfirmed transactions, count=%d", len(unconfirmed))
	return len(unconfirmed), nil
}

// HandleConfirmed picks up the user-confirmed copy of unconfirmed.csv,
// stores its rows as Classified and returns them for dispatch.
func (p *Pipeline) HandleConfirmed(ctx context.Context) ([]*qianji.Transaction, error) {
	inputDir := filepath.Join(p.cfg.WorkDir, confirmedDir)
	archiveDir := filepath.Join(p.cfg.WorkDir, "archived", "confirmed")
	postfix := fmt.Sprintf("-%d", time.Now().Unix())

	contents, err := ScanAndMove(inputDir, archiveDir, func(name string) bool {
		return name == unconfirmedName
	}, postfix)
	if err != nil {
		return nil, err
	}

	var confirmed []*qianji.Transaction
	for name, raw := range contents {
		loaded, err := qianji.LoadFromFileContent(string(stripBOM(raw)))
		if err != nil {
			log.Printf("Warning: could not load confirmed file %s: %v", name, err)
			continue
		}
		for _, t := range loaded {
			confirmed = append(confirmed, t)
		}
	}
	if len(confirmed) == 0 {
		return nil, nil
	}
	if err := p.store.UpsertBatch(ctx, confirmed, qianji.StatusClassified); err != nil {
		return nil, err
	}
	if err := p.DumpStore(ctx); err != nil {
		return nil, err
	}
	log.Printf("transactions confirmed, count=%d", len(confirmed))
	return confirmed, nil
}

// Dispatch hands one transaction to the ledger app through adb and marks it
// Written.
func (p *Pipeline) Dispatch(ctx context.Context, t *qianji.Transaction) error {
	command := t.DumpToADBCommand()
	log.Printf("dispatching: %s", command)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("dispatch %s: %w (%s)", t.ID, err, out)
	}
	if err := p.store.UpsertBatch(ctx, []*qianji.Transaction{t}, qianji.StatusWritten); err != nil {
		return err
	}
	return p.DumpStore(ctx)
}

// DumpStore rewrites output.csv with every stored transaction, newest
// first.
func (p *Pipeline) DumpStore(ctx context.Context) error {
	all, err := p.store.LoadOrdered(ctx)
	if err != nil {
		return err
	}
	return writeCSV(filepath.Join(p.cfg.OutputPath, "output.csv"), all, "\r\n")
}

// Run executes the polling loop until the context is canceled. Each job
// recovers its own failures by logging; nothing here terminates the
// process.
func (p *Pipeline) Run(ctx context.Context) error {
	ingestTick := time.NewTicker(p.cfg.Intervals.Ingest)
	unconfirmedTick := time.NewTicker(p.cfg.Intervals.Unconfirmed)
	confirmedTick := time.NewTicker(p.cfg.Intervals.Confirmed)
	dispatchTick := time.NewTicker(p.cfg.Intervals.Dispatch)
	defer ingestTick.Stop()
	defer unconfirmedTick.Stop()
	defer confirmedTick.Stop()
	defer dispatchTick.Stop()

	// Start dirty so Raw rows left over from a previous session are offered
	// for review again.
	dirty := true
	var pending []*qianji.Transaction

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ingestTick.C:
			n, err := p.LoadFromRawBills(ctx)
			if err != nil {
				log.Printf("Error: raw bill ingestion failed: %v", err)
			}
			if n > 0 {
				dirty = true
			}
		case <-unconfirmedTick.C:
			if !dirty {
				continue
			}
			if _, err := p.WriteUnconfirmed(ctx); err != nil {
				log.Printf("Error: writing unconfirmed failed: %v", err)
				continue
			}
			dirty = false
		case <-confirmedTick.C:
			confirmed, err := p.HandleConfirmed(ctx)
			if err != nil {
				log.Printf("Error: handling confirmed failed: %v", err)
				continue
			}
			pending = append(pending, confirmed...)
		case <-dispatchTick.C:
			if len(pending) == 0 {
				continue
			}
			t := pending[0]
			pending = pending[1:]
			if err := p.Dispatch(ctx, t); err != nil {
				log.Printf("Error: dispatch failed: %v", err)
			}
		}
	}
}

func writeCSV(path string, transactions []*qianji.Transaction, sep string) error {
	out := qianji.ExportHeader
	for _, t := range transactions {
		out += sep + t.Dump()
	}
	data := append(append([]byte{}, utf8BOM...), []byte(out)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == utf8BOM[0] && data[1] == utf8BOM[1] && data[2] == utf8BOM[2] {
		return data[3:]
	}
	return data
}
