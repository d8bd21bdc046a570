// Package leads loads the lead list from CSV.
package leads

import (
	"encoding/csv"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/idna"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/validate"
)

// ReadFile reads leads from a CSV file with company_name and domain columns.
func ReadFile(path string) ([]model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leads: open %s", path)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read decodes leads from r. Malformed rows are dropped with a warning and
// repeated domains keep their first occurrence. Only an unreadable input or
// missing header columns return an error.
func Read(r io.Reader) ([]model.Lead, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("leads: empty csv")
		}
		return nil, eris.Wrap(err, "leads: read header")
	}
	dec.DisallowMissingColumns = true

	var (
		out  []model.Lead
		seen = make(map[string]bool)
		row  = 1
	)
	for {
		row++
		var lead model.Lead
		err := dec.Decode(&lead)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var missing *csvutil.MissingColumnsError
			if errors.As(err, &missing) {
				return nil, eris.Wrap(err, "leads: header")
			}
			if errors.Is(err, csvutil.ErrFieldCount) {
				zap.L().Warn("leads: dropping row with wrong field count", zap.Int("row", row))
				continue
			}
			return nil, eris.Wrapf(err, "leads: decode row %d", row)
		}

		lead, err = normalize(lead)
		if err != nil {
			zap.L().Warn("leads: dropping malformed row", zap.Int("row", row), zap.Error(err))
			continue
		}
		if seen[lead.Domain] {
			zap.L().Debug("leads: dropping duplicate domain", zap.Int("row", row), zap.String("domain", lead.Domain))
			continue
		}
		seen[lead.Domain] = true
		out = append(out, lead)
	}
	return out, nil
}

func normalize(lead model.Lead) (model.Lead, error) {
	lead.Company = strings.TrimSpace(lead.Company)
	domain, err := NormalizeDomain(lead.Domain)
	if err != nil {
		return lead, err
	}
	lead.Domain = domain
	if err := validate.Lead(lead); err != nil {
		return lead, err
	}
	return lead, nil
}

// NormalizeDomain reduces a URL or host to a lowercase ASCII domain without
// scheme, "www." prefix, port or path.
func NormalizeDomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", eris.New("leads: empty domain")
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", eris.Wrapf(err, "leads: invalid domain %q", raw)
	}
	return ascii, nil
}
