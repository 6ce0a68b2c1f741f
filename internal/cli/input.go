// Package cli handles cmd line input and live searches for DBG and testing various features
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dmitri-lerko/gcpiam-search/internal/utils"
	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
	"github.com/dmitri-lerko/gcpiam-search/pkg/session"
)

// Searcher executes one normalized query with the session's current settings.
// Both the local match engine and the remote query client satisfy this shape
// through small adapters in the cmd package.
type Searcher func(query string, cfg session.Config) (iam.SearchResults, error)

// InputHandler processes user input from stdin, providing permission and
// role search results. Queries run through the session manager, so input is
// normalized and bursts of keystrokes collapse into a single search.
type InputHandler struct {
	search  Searcher
	session *session.Session
}

// NewInputHandler handles initialization of the InputHandler
func NewInputHandler(search Searcher, sess *session.Session) *InputHandler {
	return &InputHandler{
		search:  search,
		session: sess,
	}
}

// Start begins the interface loop.
// It continuously prompts for input, reads a line from stdin,
// and passes the trimmed input to handleInput() for processing.
// Loop terminates if an error occurs while reading from stdin
func (h *InputHandler) Start() error {
	log.Print("IAM Search CLI [BETA]")
	reader := bufio.NewReader(os.Stdin)
	log.Print("type a permission or role query and press Enter (Ctrl+C to exit):")
	log.Print("commands: /mode exact|prefix|fuzzy, /limit N, /threshold X")

	for {
		log.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			h.session.Close()
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			h.handleCommand(line)
			continue
		}
		h.handleInput(line)
	}
}

// handleCommand adjusts session settings in place.
func (h *InputHandler) handleCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/mode":
		if len(fields) != 2 {
			log.Errorf("Usage: /mode exact|prefix|fuzzy")
			return
		}
		switch session.Mode(fields[1]) {
		case session.ModeExact, session.ModePrefix, session.ModeFuzzy:
			h.session.SetMode(session.Mode(fields[1]))
			log.Printf("mode set to %s", fields[1])
		default:
			log.Errorf("Unknown mode: %s", fields[1])
		}
	case "/limit":
		if len(fields) != 2 {
			log.Errorf("Usage: /limit N")
			return
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			log.Errorf("Limit must be a positive integer: %s", fields[1])
			return
		}
		h.session.SetResultLimit(n)
		log.Printf("limit set to %d", n)
	case "/threshold":
		if len(fields) != 2 {
			log.Errorf("Usage: /threshold X (0..1)")
			return
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			log.Errorf("Threshold must be a number: %s", fields[1])
			return
		}
		h.session.SetFuzzyThreshold(v)
		log.Printf("fuzzy threshold set to %.2f", h.session.FuzzyThreshold())
	default:
		log.Errorf("Unknown command: %s", fields[0])
	}
}

// handleInput normalizes one query and schedules it through the debouncer.
// Reading stdin is far slower than the quiet period, so in practice every
// Enter produces one search.
func (h *InputHandler) handleInput(raw string) {
	query := h.session.ValidateQuery(raw)
	if query == "" {
		log.Warnf("Empty query after normalization: '%s'", raw)
		return
	}
	h.session.DebounceSearch(h.runSearch, query)
}

// runSearch executes the query and pretty prints both result lists.
func (h *InputHandler) runSearch(query string) {
	cfg := h.session.SearchConfig()
	start := time.Now()

	res, err := h.search(query, cfg)
	if err != nil {
		log.Errorf("Search failed for '%s': %v", query, err)
		return
	}

	elapsed := time.Since(start)
	log.Debugf("Took [ %v ] for query '%s' (%s)", elapsed, query, cfg.Mode)

	if len(res.Permissions) == 0 && len(res.Roles) == 0 {
		log.Warnf("No results found for query: '%s'", query)
		return
	}

	if len(res.Permissions) > 0 {
		log.Printf("Found %d permissions for '%s':", len(res.Permissions), query)
		for i, p := range res.Permissions {
			clName := fmt.Sprintf("\033[38;5;75m%s\033[0m", p.Name)
			log.Printf("%2d. %-50s (score: %.2f, roles: %d)", i+1, clName, p.Score, len(p.GrantedByRoles))
		}
	}
	if len(res.Roles) > 0 {
		log.Printf("Found %d roles for '%s':", len(res.Roles), query)
		for i, r := range res.Roles {
			clTitle := fmt.Sprintf("\033[38;5;216m%s\033[0m", r.Title)
			fmtCount := utils.FormatWithCommas(r.PermissionCount)
			log.Printf("%2d. %-40s %-30s (score: %.2f, perms: %s)", i+1, r.Name, clTitle, r.Score, fmtCount)
		}
	}
}
