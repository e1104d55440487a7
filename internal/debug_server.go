package internal

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const defaultPrefix = "room:"

// InspectRow is one badger entry as shown by the inspector page.
type InspectRow struct {
	Key      string
	Type     string
	RoomID   string
	Sequence string
	Detail   string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// NewDebugServer serves a read-only html view of the badger keys under a
// prefix, plus the stats given by the provider. Debug builds only.
func NewDebugServer(log *slog.Logger, db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) *http.Server {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	if mapper == nil {
		mapper = DefaultMapper
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 500
		}

		data := PageData{Prefix: prefix, Stats: make(map[string]any)}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		err = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < limit; it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil))
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(key, val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Warn("Inspector scan failed", "prefix", prefix, "error", err)
			http.Error(w, "scan failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	return &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", port), Handler: mux}
}

// DefaultMapper splits "kind:room:rest" keys and shows the value size only.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.SplitN(key, ":", 3)
	row := InspectRow{
		Key:      key,
		Type:     "RAW",
		RoomID:   "-",
		Sequence: "-",
		Detail:   "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	if len(parts) >= 2 {
		row.Type = strings.ToUpper(parts[0])
		row.RoomID = parts[1]
	}
	if len(parts) == 3 {
		row.Sequence = parts[2]
	}
	return row
}
