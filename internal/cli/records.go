package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aretw0/flowstate/internal/config"
	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/persistence/middleware"
	"github.com/aretw0/flowstate/pkg/ports"
)

// ErrNotInspectable is returned for drivers whose records only live inside a
// running server.
var ErrNotInspectable = errors.New("store keeps records in process memory")

// scopeLister is implemented by stores that can enumerate their scopes.
type scopeLister interface {
	Scopes(ctx context.Context) ([]string, error)
}

// RecordsOptions configures ListRecords.
type RecordsOptions struct {
	Config *config.Config
	// Scope restricts the listing to one scope (session ID). Empty lists
	// every scope when the store can enumerate them.
	Scope string
	JSON  bool
}

// recordView is one listed record.
type recordView struct {
	Scope  string         `json:"scope"`
	Handle string         `json:"handle"`
	Record map[string]any `json:"record"`
}

// ListRecords prints the records persisted by the configured store.
func ListRecords(ctx context.Context, w io.Writer, opts RecordsOptions) error {
	cfg := opts.Config
	switch cfg.Store.Driver {
	case config.DriverSession, config.DriverMemory:
		return fmt.Errorf("%s: %w", cfg.Store.Driver, ErrNotInspectable)
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	scopes := []string{opts.Scope}
	if opts.Scope == "" {
		if sl, ok := b.store.(scopeLister); ok {
			if scopes, err = sl.Scopes(ctx); err != nil {
				return err
			}
		}
	}

	readCfg := *cfg
	readCfg.Locking = false
	mws, err := storeMiddleware(&readCfg, b, logging.NewNop())
	if err != nil {
		return err
	}
	store := middleware.Chain(b.store, mws...)
	lister, ok := store.(ports.Lister)
	if !ok {
		return domain.ErrUnsupported
	}

	var views []recordView
	for _, scope := range scopes {
		handles, err := lister.List(ctx, ports.ScopeID(scope))
		if err != nil {
			return err
		}
		for _, h := range handles {
			rec, err := store.Load(ctx, ports.ScopeID(scope), h)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			views = append(views, recordView{Scope: scope, Handle: h, Record: rec.Flatten()})
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if views == nil {
			views = []recordView{}
		}
		return enc.Encode(views)
	}

	if len(views) == 0 {
		printSystemMessage(w, "No records.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tHANDLE\tNAME\tPARENT\tRETURN TO\tKEYS")
	for _, v := range views {
		rec := domain.RecordFromMap(v.Handle, v.Record)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", v.Scope, v.Handle, rec.Name, rec.Parent, rec.ReturnTo, len(rec.Data))
	}
	return tw.Flush()
}
