package edgar

import (
	"sort"
	"strconv"
	"strings"
)

// VotingAuthority is the sole/shared/none share split on one position.
type VotingAuthority struct {
	Sole   int64 `json:"sole"`
	Shared int64 `json:"shared"`
	None   int64 `json:"none"`
}

func (v VotingAuthority) merge(other VotingAuthority) VotingAuthority {
	return VotingAuthority{
		Sole:   v.Sole + other.Sole,
		Shared: v.Shared + other.Shared,
		None:   v.None + other.None,
	}
}

// Holding is one position from a 13F information table. ValueUSD is in
// thousands of dollars, as filed.
type Holding struct {
	Issuer               string          `json:"issuer"`
	TitleOfClass         string          `json:"titleOfClass"`
	CUSIP                string          `json:"cusip"`
	ValueUSD             int64           `json:"valueUSD"`
	Shares               int64           `json:"shares"`
	SharesType           string          `json:"sharesType"`
	InvestmentDiscretion string          `json:"investmentDiscretion"`
	OtherManagers        []int           `json:"otherManagers,omitempty"`
	Voting               VotingAuthority `json:"votingAuthority"`
	Ticker               string          `json:"ticker,omitempty"`
}

// Key identifies positions that belong together across table rows.
func (h Holding) Key() string {
	return h.Issuer + "\x00" + h.TitleOfClass + "\x00" + h.CUSIP
}

// Merge combines a same-key position into h: values, shares, and voting are
// summed; differing discretion degrades to DFND; other-manager IDs are
// unioned.
func (h Holding) Merge(other Holding) Holding {
	discretion := h.InvestmentDiscretion
	if discretion != other.InvestmentDiscretion {
		discretion = "DFND"
	}
	return Holding{
		Issuer:               h.Issuer,
		TitleOfClass:         h.TitleOfClass,
		CUSIP:                h.CUSIP,
		ValueUSD:             h.ValueUSD + other.ValueUSD,
		Shares:               h.Shares + other.Shares,
		SharesType:           firstNonEmpty(h.SharesType, other.SharesType),
		InvestmentDiscretion: discretion,
		OtherManagers:        unionInts(h.OtherManagers, other.OtherManagers),
		Voting:               h.Voting.merge(other.Voting),
		Ticker:               firstNonEmpty(h.Ticker, other.Ticker),
	}
}

func holdingFromRow(row infoTableRow) Holding {
	return Holding{
		Issuer:               strings.TrimSpace(row.NameOfIssuer),
		TitleOfClass:         strings.TrimSpace(row.TitleOfClass),
		CUSIP:                strings.TrimSpace(row.CUSIP),
		ValueUSD:             parseAmount(row.Value),
		Shares:               parseAmount(row.SharesOrPrincipal),
		SharesType:           strings.ToUpper(strings.TrimSpace(row.SharesType)),
		InvestmentDiscretion: strings.ToUpper(strings.TrimSpace(row.InvestmentDiscretion)),
		OtherManagers:        parseManagerList(row.OtherManager),
		Voting: VotingAuthority{
			Sole:   parseAmount(row.VotingSole),
			Shared: parseAmount(row.VotingShared),
			None:   parseAmount(row.VotingNone),
		},
	}
}

// GroupAndMerge collapses same-key rows into one position each. Output is
// sorted by descending value for stable reporting.
func GroupAndMerge(holdings []Holding) []Holding {
	grouped := make(map[string]Holding, len(holdings))
	order := make([]string, 0, len(holdings))
	for _, h := range holdings {
		key := h.Key()
		if existing, ok := grouped[key]; ok {
			grouped[key] = existing.Merge(h)
			continue
		}
		grouped[key] = h
		order = append(order, key)
	}
	out := make([]Holding, 0, len(order))
	for _, key := range order {
		out = append(out, grouped[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ValueUSD > out[j].ValueUSD })
	return out
}

// TotalValue sums position values in filed thousands.
func TotalValue(holdings []Holding) int64 {
	var total int64
	for _, h := range holdings {
		total += h.ValueUSD
	}
	return total
}

// CSVRows renders holdings as rows for encoding/csv, header first.
func CSVRows(holdings []Holding) [][]string {
	rows := [][]string{{
		"issuer", "titleOfClass", "cusip", "ticker", "valueUSD", "shares",
		"sharesType", "investmentDiscretion", "otherManagers",
		"votingSole", "votingShared", "votingNone",
	}}
	for _, h := range holdings {
		managers := make([]string, len(h.OtherManagers))
		for i, m := range h.OtherManagers {
			managers[i] = strconv.Itoa(m)
		}
		rows = append(rows, []string{
			h.Issuer,
			h.TitleOfClass,
			h.CUSIP,
			h.Ticker,
			strconv.FormatInt(h.ValueUSD, 10),
			strconv.FormatInt(h.Shares, 10),
			h.SharesType,
			h.InvestmentDiscretion,
			strings.Join(managers, ","),
			strconv.FormatInt(h.Voting.Sole, 10),
			strconv.FormatInt(h.Voting.Shared, 10),
			strconv.FormatInt(h.Voting.None, 10),
		})
	}
	return rows
}

// parseAmount tolerates commas and blank strings in filed numbers; anything
// unparseable counts as zero.
func parseAmount(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseManagerList(s string) []int {
	var out []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func unionInts(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, n := range append(append([]int{}, a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
