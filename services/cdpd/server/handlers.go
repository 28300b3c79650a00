package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"cdpvault/native/cdp"
	"cdpvault/native/cdp/clip"
	"cdpvault/native/cdp/fixed"
	"cdpvault/services/cdpd/indexer"
)

// Amounts travel as decimal strings in their natural unit.
var unitDecimals = map[string]int{
	"":    0,
	"int": 0,
	"wad": fixed.WadDecimals,
	"ray": fixed.RayDecimals,
	"rad": fixed.RadDecimals,
}

// paramDecimals is the unit of each named parameter in views.
var paramDecimals = map[string]int{
	"buf":  fixed.RayDecimals,
	"cusp": fixed.RayDecimals,
	"cut":  fixed.RayDecimals,
	"chip": fixed.WadDecimals,
	"tip":  fixed.RadDecimals,
}

func badRequest(field string, err error) error {
	return fmt.Errorf("%s: %w: %v", field, errBadRequest, err)
}

func amount(field, value string, decimals int) (*uint256.Int, error) {
	v, err := fixed.Parse(strings.TrimSpace(value), decimals)
	if err != nil {
		return nil, badRequest(field, err)
	}
	return v, nil
}

func signed(field, value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int), nil
	}
	neg := strings.HasPrefix(value, "-")
	abs, err := amount(field, strings.TrimPrefix(strings.TrimPrefix(value, "-"), "+"), decimals)
	if err != nil {
		return nil, err
	}
	if neg {
		return fixed.Neg(abs), nil
	}
	return fixed.Signed(abs), nil
}

func address(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, badRequest(field, errors.New("not a hex address"))
	}
	return common.HexToAddress(value), nil
}

func optionalAddress(field, value string, fallback common.Address) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return address(field, value)
}

func format(x *uint256.Int, decimals int) string { return fixed.Format(x, decimals) }

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("body", err)
	}
	return nil
}

func auctionID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, badRequest("id", err)
	}
	return id, nil
}

// mutate runs fn as the authenticated caller, persists on success and
// writes the result.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(caller common.Address) (any, error)) {
	caller, ok := Caller(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "unauthenticated", "missing caller", false)
		return
	}
	result, err := fn(caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Persist()
	if result == nil {
		result = map[string]any{"ok": true}
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Views ---

type totalsJSON struct {
	Live        bool   `json:"live"`
	Debt        string `json:"debt"`
	Vice        string `json:"vice"`
	Line        string `json:"line"`
	Surplus     string `json:"surplus"`
	Deficit     string `json:"deficit"`
	Queued      string `json:"queued"`
	Hole        string `json:"hole"`
	Dirt        string `json:"dirt"`
	Base        string `json:"base"`
	Par         string `json:"par"`
	VowWait     uint64 `json:"vow_wait"`
	VowSink     string `json:"vow_sink"`
	VowAddress  string `json:"vow_address"`
	JoinAddress string `json:"join_address"`
	Governor    string `json:"governor"`
	Now         uint64 `json:"now"`
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	t := s.sys.Totals()
	writeJSON(w, http.StatusOK, totalsJSON{
		Live:        t.Live,
		Debt:        format(t.Debt, fixed.RadDecimals),
		Vice:        format(t.Vice, fixed.RadDecimals),
		Line:        format(t.Line, fixed.RadDecimals),
		Surplus:     format(t.Surplus, fixed.RadDecimals),
		Deficit:     format(t.Deficit, fixed.RadDecimals),
		Queued:      format(t.Queued, fixed.RadDecimals),
		Hole:        format(t.Hole, fixed.RadDecimals),
		Dirt:        format(t.Dirt, fixed.RadDecimals),
		Base:        format(t.Base, fixed.RayDecimals),
		Par:         format(t.Par, fixed.RayDecimals),
		VowWait:     t.VowWait,
		VowSink:     t.VowSink.Hex(),
		VowAddress:  t.VowAddress.Hex(),
		JoinAddress: t.JoinAddress.Hex(),
		Governor:    s.sys.Governor().Hex(),
		Now:         s.sys.Now(),
	})
}

type ilkJSON struct {
	Name        string            `json:"name"`
	Art         string            `json:"art"`
	Rate        string            `json:"rate"`
	Spot        string            `json:"spot"`
	Line        string            `json:"line"`
	Dust        string            `json:"dust"`
	Mat         string            `json:"mat"`
	Duty        string            `json:"duty"`
	Rho         uint64            `json:"rho"`
	Chop        string            `json:"chop"`
	Hole        string            `json:"hole"`
	Dirt        string            `json:"dirt"`
	Price       string            `json:"price"`
	PriceStatus string            `json:"price_status"`
	PriceAge    uint64            `json:"price_age"`
	Calc        string            `json:"calc"`
	CalcParams  map[string]string `json:"calc_params"`
	ClipParams  map[string]string `json:"clip_params"`
	Chost       string            `json:"chost"`
	Auctions    int               `json:"auctions"`
	Clipper     string            `json:"clipper"`
}

func params(in map[string]*uint256.Int) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = format(value, paramDecimals[key])
	}
	return out
}

func (s *Server) ilkView(name string) (ilkJSON, error) {
	v, err := s.sys.Ilk(name)
	if err != nil {
		return ilkJSON{}, err
	}
	clipper, err := s.sys.ClipAddress(name)
	if err != nil {
		return ilkJSON{}, err
	}
	return ilkJSON{
		Name:        v.Name,
		Art:         format(v.Art, fixed.WadDecimals),
		Rate:        format(v.Rate, fixed.RayDecimals),
		Spot:        format(v.Spot, fixed.RayDecimals),
		Line:        format(v.Line, fixed.RadDecimals),
		Dust:        format(v.Dust, fixed.RadDecimals),
		Mat:         format(v.Mat, fixed.RayDecimals),
		Duty:        format(v.Duty, fixed.RayDecimals),
		Rho:         v.Rho,
		Chop:        format(v.Chop, fixed.WadDecimals),
		Hole:        format(v.Hole, fixed.RadDecimals),
		Dirt:        format(v.Dirt, fixed.RadDecimals),
		Price:       format(v.Price, fixed.WadDecimals),
		PriceStatus: string(v.PriceStatus),
		PriceAge:    v.PriceAge,
		Calc:        v.Calc,
		CalcParams:  params(v.CalcParams),
		ClipParams:  params(v.ClipParams),
		Chost:       format(v.Chost, fixed.RadDecimals),
		Auctions:    v.AuctionCount,
		Clipper:     clipper.Hex(),
	}, nil
}

func (s *Server) handleIlks(w http.ResponseWriter, r *http.Request) {
	names := s.sys.Ilks()
	out := make([]ilkJSON, 0, len(names))
	for _, name := range names {
		view, err := s.ilkView(name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIlk(w http.ResponseWriter, r *http.Request) {
	view, err := s.ilkView(chi.URLParam(r, "ilk"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type urnJSON struct {
	Ilk   string `json:"ilk"`
	Owner string `json:"owner"`
	Ink   string `json:"ink"`
	Art   string `json:"art"`
	Debt  string `json:"debt"`
	Safe  bool   `json:"safe"`
	Gem   string `json:"gem"`
}

func (s *Server) urnJSON(v cdp.UrnView) urnJSON {
	return urnJSON{
		Ilk:   v.Ilk,
		Owner: v.Owner.Hex(),
		Ink:   format(v.Ink, fixed.WadDecimals),
		Art:   format(v.Art, fixed.WadDecimals),
		Debt:  format(v.Debt, fixed.RadDecimals),
		Safe:  v.Safe,
		Gem:   format(s.sys.Gem(v.Ilk, v.Owner), fixed.WadDecimals),
	}
}

func (s *Server) handleUrn(w http.ResponseWriter, r *http.Request) {
	owner, err := address("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.sys.Urn(chi.URLParam(r, "ilk"), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.urnJSON(view))
}

func (s *Server) handleUrns(w http.ResponseWriter, r *http.Request) {
	views, err := s.sys.Urns(chi.URLParam(r, "ilk"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	unsafeOnly := r.URL.Query().Get("unsafe") == "true"
	out := make([]urnJSON, 0, len(views))
	for _, view := range views {
		if unsafeOnly && view.Safe {
			continue
		}
		out = append(out, s.urnJSON(view))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := address("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	stable, sin := s.sys.Balances(owner)
	gems := map[string]string{}
	for _, ilk := range s.sys.Ilks() {
		gems[ilk] = format(s.sys.Gem(ilk, owner), fixed.WadDecimals)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":  owner.Hex(),
		"stable": format(stable, fixed.RadDecimals),
		"sin":    format(sin, fixed.RadDecimals),
		"gem":    gems,
	})
}

type auctionJSON struct {
	Ilk       string `json:"ilk"`
	ID        uint64 `json:"id"`
	Tab       string `json:"tab"`
	Lot       string `json:"lot"`
	Usr       string `json:"usr"`
	Tic       uint64 `json:"tic"`
	Top       string `json:"top"`
	Price     string `json:"price"`
	NeedsRedo bool   `json:"needs_redo"`
}

func toAuctionJSON(v cdp.AuctionView) auctionJSON {
	return auctionJSON{
		Ilk:       v.Ilk,
		ID:        v.ID,
		Tab:       format(v.Tab, fixed.RadDecimals),
		Lot:       format(v.Lot, fixed.WadDecimals),
		Usr:       v.Usr.Hex(),
		Tic:       v.Tic,
		Top:       format(v.Top, fixed.RayDecimals),
		Price:     format(v.Price, fixed.RayDecimals),
		NeedsRedo: v.NeedsRedo,
	}
}

func (s *Server) handleAuctions(w http.ResponseWriter, r *http.Request) {
	views, err := s.sys.Auctions(chi.URLParam(r, "ilk"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]auctionJSON, 0, len(views))
	for _, view := range views {
		out = append(out, toAuctionJSON(view))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.sys.Auction(chi.URLParam(r, "ilk"), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionJSON(view))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue := s.sys.QueuedDebt()
	out := make(map[string]string, len(queue))
	for era, tab := range queue {
		out[strconv.FormatUint(era, 10)] = format(tab, fixed.RadDecimals)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "unavailable", "event history disabled", false)
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{Type: q.Get("type"), Ilk: q.Get("ilk")}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, badRequest("after", err))
			return
		}
		filter.AfterSeq = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, badRequest("limit", err))
			return
		}
		filter.Limit = limit
	}
	records, err := s.history.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Positions and balances ---

type positionRequest struct {
	U    string `json:"u"`
	V    string `json:"v"`
	W    string `json:"w"`
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Dink string `json:"dink"` // [wad], signed
	Dart string `json:"dart"` // [wad], signed
}

func (req positionRequest) deltas() (*big.Int, *big.Int, error) {
	dink, err := signed("dink", req.Dink, fixed.WadDecimals)
	if err != nil {
		return nil, nil, err
	}
	dart, err := signed("dart", req.Dart, fixed.WadDecimals)
	if err != nil {
		return nil, nil, err
	}
	return dink, dart, nil
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req positionRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		dink, dart, err := req.deltas()
		if err != nil {
			return nil, err
		}
		return nil, s.sys.AdjustPosition(caller, chi.URLParam(r, "ilk"), dink, dart)
	})
}

func (s *Server) handleFrob(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req positionRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		u, err := optionalAddress("u", req.U, caller)
		if err != nil {
			return nil, err
		}
		v, err := optionalAddress("v", req.V, caller)
		if err != nil {
			return nil, err
		}
		wAddr, err := optionalAddress("w", req.W, caller)
		if err != nil {
			return nil, err
		}
		dink, dart, err := req.deltas()
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Frob(caller, chi.URLParam(r, "ilk"), u, v, wAddr, dink, dart)
	})
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req positionRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		src, err := optionalAddress("src", req.Src, caller)
		if err != nil {
			return nil, err
		}
		dst, err := address("dst", req.Dst)
		if err != nil {
			return nil, err
		}
		dink, dart, err := req.deltas()
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Fork(caller, chi.URLParam(r, "ilk"), src, dst, dink, dart)
	})
}

func (s *Server) handleMovePosition(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req positionRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		src, err := optionalAddress("src", req.Src, caller)
		if err != nil {
			return nil, err
		}
		dst, err := address("dst", req.Dst)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.MovePosition(caller, chi.URLParam(r, "ilk"), src, dst)
	})
}

type transferRequest struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Usr    string `json:"usr"`
	Ilk    string `json:"ilk"`
	Amount string `json:"amount"`
}

func (s *Server) handleFlux(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		src, err := optionalAddress("src", req.Src, caller)
		if err != nil {
			return nil, err
		}
		dst, err := address("dst", req.Dst)
		if err != nil {
			return nil, err
		}
		wad, err := amount("amount", req.Amount, fixed.WadDecimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Flux(caller, chi.URLParam(r, "ilk"), src, dst, wad)
	})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		wad, err := amount("amount", req.Amount, fixed.WadDecimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Exit(caller, chi.URLParam(r, "ilk"), wad)
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		src, err := optionalAddress("src", req.Src, caller)
		if err != nil {
			return nil, err
		}
		dst, err := address("dst", req.Dst)
		if err != nil {
			return nil, err
		}
		rad, err := amount("amount", req.Amount, fixed.RadDecimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Move(caller, src, dst, rad)
	})
}

func (s *Server) handleHope(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		usr, err := address("usr", req.Usr)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Hope(caller, usr)
	})
}

func (s *Server) handleNope(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		usr, err := address("usr", req.Usr)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Nope(caller, usr)
	})
}

// --- Rates, prices, liquidation ---

func (s *Server) handleDrip(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		rate, err := s.sys.Drip(caller, chi.URLParam(r, "ilk"))
		if err != nil {
			return nil, err
		}
		return map[string]string{"rate": format(rate, fixed.RayDecimals)}, nil
	})
}

func (s *Server) handlePoke(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		return nil, s.sys.Poke(caller, chi.URLParam(r, "ilk"))
	})
}

type keeperRequest struct {
	Kpr string `json:"kpr"`
}

func (s *Server) handleBark(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req keeperRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		urn, err := address("urn", chi.URLParam(r, "urn"))
		if err != nil {
			return nil, err
		}
		kpr, err := optionalAddress("kpr", req.Kpr, caller)
		if err != nil {
			return nil, err
		}
		id, err := s.sys.Bark(caller, chi.URLParam(r, "ilk"), urn, kpr)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"id": id}, nil
	})
}

type takeRequest struct {
	Amount    string `json:"amount"`    // [wad]
	MaxPrice  string `json:"max_price"` // [ray]
	Recipient string `json:"recipient"`
}

type takeJSON struct {
	Price   string `json:"price"`
	Slice   string `json:"slice"`
	Owe     string `json:"owe"`
	Tab     string `json:"tab"`
	Lot     string `json:"lot"`
	Cleared bool   `json:"cleared"`
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req takeRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		id, err := auctionID(r)
		if err != nil {
			return nil, err
		}
		amt, err := amount("amount", req.Amount, fixed.WadDecimals)
		if err != nil {
			return nil, err
		}
		maxPrice, err := amount("max_price", req.MaxPrice, fixed.RayDecimals)
		if err != nil {
			return nil, err
		}
		recipient, err := optionalAddress("recipient", req.Recipient, caller)
		if err != nil {
			return nil, err
		}
		res, err := s.sys.Take(caller, chi.URLParam(r, "ilk"), clip.TakeRequest{
			ID: id, Amount: amt, MaxPrice: maxPrice, Recipient: recipient,
		})
		if err != nil {
			return nil, err
		}
		return takeJSON{
			Price:   format(res.Price, fixed.RayDecimals),
			Slice:   format(res.Slice, fixed.WadDecimals),
			Owe:     format(res.Owe, fixed.RadDecimals),
			Tab:     format(res.Tab, fixed.RadDecimals),
			Lot:     format(res.Lot, fixed.WadDecimals),
			Cleared: res.Cleared,
		}, nil
	})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req keeperRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		id, err := auctionID(r)
		if err != nil {
			return nil, err
		}
		kpr, err := optionalAddress("kpr", req.Kpr, caller)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Redo(caller, chi.URLParam(r, "ilk"), id, kpr)
	})
}

func (s *Server) handleYank(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		id, err := auctionID(r)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Yank(caller, chi.URLParam(r, "ilk"), id)
	})
}

func (s *Server) handleUpchost(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		return nil, s.sys.Upchost(caller, chi.URLParam(r, "ilk"))
	})
}

// --- Settlement ---

type settlementRequest struct {
	Amount string `json:"amount"` // [rad]
	Era    uint64 `json:"era"`
}

func (s *Server) handleHeal(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req settlementRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		rad, err := amount("amount", req.Amount, fixed.RadDecimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Heal(caller, rad)
	})
}

func (s *Server) handleFlog(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req settlementRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.sys.Flog(caller, req.Era)
	})
}

func (s *Server) handleFlap(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		lot, err := s.sys.Flap(caller)
		if err != nil {
			return nil, err
		}
		return map[string]string{"lot": format(lot, fixed.RadDecimals)}, nil
	})
}

// --- Administration ---

type adminRequest struct {
	Component string            `json:"component"`
	Ilk       string            `json:"ilk"`
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	Unit      string            `json:"unit"`
	Kind      string            `json:"kind"`
	Params    map[string]string `json:"params"`
	Usr       string            `json:"usr"`
	Amount    string            `json:"amount"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req adminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		usr, err := address("usr", req.Usr)
		if err != nil {
			return nil, err
		}
		wad, err := amount("amount", req.Amount, fixed.WadDecimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.Join(caller, req.Ilk, usr, wad)
	})
}

func unitOf(field, unit string) (int, error) {
	decimals, ok := unitDecimals[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, badRequest(field, fmt.Errorf("unknown unit %q", unit))
	}
	return decimals, nil
}

func (s *Server) handleParam(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req adminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		decimals, err := unitOf("unit", req.Unit)
		if err != nil {
			return nil, err
		}
		value, err := amount("value", req.Value, decimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.SetParam(caller, req.Component, req.Ilk, req.Key, value)
	})
}

func (s *Server) handleCalc(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req adminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		values := make(map[string]*uint256.Int, len(req.Params))
		for key, raw := range req.Params {
			value, err := amount("params."+key, raw, paramDecimals[key])
			if err != nil {
				return nil, err
			}
			values[key] = value
		}
		return nil, s.sys.SetCalculator(caller, req.Ilk, req.Kind, values)
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req adminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		price, err := amount("value", req.Value, fixed.WadDecimals)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.PublishPrice(caller, chi.URLParam(r, "ilk"), price)
	})
}

func (s *Server) handleSink(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req adminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		sink, err := address("usr", req.Usr)
		if err != nil {
			return nil, err
		}
		return nil, s.sys.SetSink(caller, sink)
	})
}

func (s *Server) handleRely(w http.ResponseWriter, r *http.Request) {
	s.handleWard(w, r, true)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	s.handleWard(w, r, false)
}

func (s *Server) handleWard(w http.ResponseWriter, r *http.Request, grant bool) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		var req adminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		usr, err := address("usr", req.Usr)
		if err != nil {
			return nil, err
		}
		if grant {
			return nil, s.sys.Rely(caller, req.Component, req.Ilk, usr)
		}
		return nil, s.sys.Deny(caller, req.Component, req.Ilk, usr)
	})
}

func (s *Server) handleCage(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(caller common.Address) (any, error) {
		return nil, s.sys.Cage(caller)
	})
}
