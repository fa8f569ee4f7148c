// Package access decides whether a Telegram user may use the bot based on
// whitelist/blacklist files loaded at startup.
package access

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"tg_payment_link_bot/internal/config"
	"tg_payment_link_bot/internal/logging"
)

const (
	// File names expected inside the configured access directory.
	WhitelistFile = "whitelist.csv"
	BlacklistFile = "blacklist.csv"

	userIDColumn = "user_id"
)

// Policy is the read-only access policy snapshot. It is loaded once at startup
// and safe for unsynchronized concurrent reads.
type Policy struct {
	whitelist       map[int64]struct{}
	blacklist       map[int64]struct{}
	onlyWhitelisted bool
}

// NewPolicy builds a policy from explicit identity sets; primarily useful in
// tests and for callers that source the lists elsewhere.
func NewPolicy(whitelist, blacklist []int64, onlyWhitelisted bool) *Policy {
	return &Policy{
		whitelist:       toSet(whitelist),
		blacklist:       toSet(blacklist),
		onlyWhitelisted: onlyWhitelisted,
	}
}

// LoadPolicy reads whitelist.csv and blacklist.csv from cfg.AccessDir. A
// missing list file is tolerated and treated as an empty list; a present but
// malformed file is an error.
func LoadPolicy(cfg config.Config, logger *logrus.Entry) (*Policy, error) {
	if logger == nil {
		logger = logging.Logger()
	}

	whitelist, err := loadList(filepath.Join(cfg.AccessDir, WhitelistFile), logger)
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}

	blacklist, err := loadList(filepath.Join(cfg.AccessDir, BlacklistFile), logger)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	logger.WithFields(logging.Fields{
		"event":            "access_policy_loaded",
		"whitelist_size":   len(whitelist),
		"blacklist_size":   len(blacklist),
		"only_whitelisted": cfg.OnlyWhitelisted,
	}).Info("access policy loaded")

	return &Policy{
		whitelist:       whitelist,
		blacklist:       blacklist,
		onlyWhitelisted: cfg.OnlyWhitelisted,
	}, nil
}

// CanAccess reports whether the given user may use the bot. In
// only-whitelisted mode membership in the whitelist is authoritative and the
// blacklist is ignored; otherwise absence from the blacklist grants access.
func (p *Policy) CanAccess(userID int64) bool {
	if p == nil {
		return false
	}

	if p.onlyWhitelisted {
		_, ok := p.whitelist[userID]
		return ok
	}

	_, denied := p.blacklist[userID]
	return !denied
}

// WhitelistSize returns the number of whitelisted identities.
func (p *Policy) WhitelistSize() int {
	return len(p.whitelist)
}

// BlacklistSize returns the number of blacklisted identities.
func (p *Policy) BlacklistSize() int {
	return len(p.blacklist)
}

func loadList(path string, logger *logrus.Entry) (map[int64]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithFields(logging.Fields{
				"event": "access_list_missing",
				"path":  path,
			}).Warn("access list file not found, treating as empty")
			return map[int64]struct{}{}, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	return parseList(file, path)
}

func parseList(r io.Reader, path string) (map[int64]struct{}, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Ragged rows are tolerated; only the user_id column is read.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[int64]struct{}{}, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	column := -1
	for i, name := range header {
		if strings.TrimSpace(name) == userIDColumn {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("%s: missing %q column", path, userIDColumn)
	}

	ids := make(map[int64]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if column >= len(record) {
			continue
		}

		raw := strings.TrimSpace(record[column])
		if raw == "" {
			continue
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid user_id %q: %w", path, raw, err)
		}

		ids[id] = struct{}{}
	}

	return ids, nil
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
