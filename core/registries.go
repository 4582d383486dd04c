package core

// registries.go – wallets, communities, and purpose channels (C4): each a
// map guarded by a mutex with a secondary name-keyed lookup, List returning
// a fresh slice of the registered entries (the entries themselves are the
// registry's own, not copies).

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

func newWalletID() WalletID       { return WalletID(uuid.NewString()) }
func newCommunityID() CommunityID { return CommunityID(uuid.NewString()) }
func newPurposeID() PurposeID     { return PurposeID(uuid.NewString()) }

// Wallet is a registry entry: an identifier, display name, and the
// communities/purposes it has joined or registered. It is not a keypair —
// there is no signing operation here, so there is no key material to hold.
type Wallet struct {
	ID          WalletID
	Name        string
	CreatedAt   time.Time
	Communities stringSet
	Purposes    stringSet
}

// WalletRegistry is the CRUD store for wallets.
type WalletRegistry struct {
	mu     sync.RWMutex
	byID   map[WalletID]*Wallet
	byName map[string]WalletID // lower-cased name -> id
}

func NewWalletRegistry() *WalletRegistry {
	return &WalletRegistry{byID: make(map[WalletID]*Wallet), byName: make(map[string]WalletID)}
}

// Create registers a new wallet with the given display name.
func (r *WalletRegistry) Create(name string, now time.Time) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &Wallet{
		ID:          newWalletID(),
		Name:        name,
		CreatedAt:   now,
		Communities: newStringSet(),
		Purposes:    newStringSet(),
	}
	r.byID[w.ID] = w
	r.byName[strings.ToLower(name)] = w.ID
	return w, nil
}

// Get returns the wallet with the given id, or ErrWalletUnknown.
func (r *WalletRegistry) Get(id WalletID) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, newErr(ErrWalletUnknown, string(id))
	}
	return w, nil
}

// GetByName performs a case-insensitive lookup by display name.
func (r *WalletRegistry) GetByName(name string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, newErr(ErrWalletUnknown, name)
	}
	return r.byID[id], nil
}

// List returns all registered wallets.
func (r *WalletRegistry) List() []*Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Wallet, 0, len(r.byID))
	for _, w := range r.byID {
		out = append(out, w)
	}
	return out
}

// restore re-inserts a wallet reconstructed from a snapshot view, used only
// while importing ledger state.
func (r *WalletRegistry) restore(w *Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[w.ID] = w
	r.byName[strings.ToLower(w.Name)] = w.ID
}

// JoinCommunity / RegisterPurpose mutate a wallet's membership sets; they
// are idempotent.
func (r *WalletRegistry) JoinCommunity(id WalletID, c CommunityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return newErr(ErrWalletUnknown, string(id))
	}
	w.Communities[string(c)] = struct{}{}
	return nil
}

func (r *WalletRegistry) RegisterPurpose(id WalletID, p PurposeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return newErr(ErrWalletUnknown, string(id))
	}
	w.Purposes[string(p)] = struct{}{}
	return nil
}

//------------------------------------------------------------------------
// Community registry
//------------------------------------------------------------------------

// Community is (id, name, description, boundary-fee, created_at,
// member-count). MemberCount is an approximate counter, not a source of
// truth for membership.
type Community struct {
	ID          CommunityID
	Name        string
	Description string
	BoundaryFee float64
	CreatedAt   time.Time
	MemberCount uint64
}

type CommunityRegistry struct {
	mu     sync.RWMutex
	byID   map[CommunityID]*Community
	byName map[string]CommunityID
}

func NewCommunityRegistry() *CommunityRegistry {
	return &CommunityRegistry{byID: make(map[CommunityID]*Community), byName: make(map[string]CommunityID)}
}

// Create validates boundary-fee ∈ [0,1].
func (r *CommunityRegistry) Create(name, description string, boundaryFee float64, now time.Time) (*Community, error) {
	if boundaryFee < 0 || boundaryFee > 1 {
		return nil, newErr(ErrAmount, "boundary fee must be in [0,1]")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Community{
		ID:          newCommunityID(),
		Name:        name,
		Description: description,
		BoundaryFee: boundaryFee,
		CreatedAt:   now,
	}
	r.byID[c.ID] = c
	r.byName[strings.ToLower(name)] = c.ID
	return c, nil
}

func (r *CommunityRegistry) Get(id CommunityID) (*Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, newErr(ErrCommunityUnknown, string(id))
	}
	return c, nil
}

func (r *CommunityRegistry) GetByName(name string) (*Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, newErr(ErrCommunityUnknown, name)
	}
	return r.byID[id], nil
}

func (r *CommunityRegistry) List() []*Community {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Community, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// AddMember / RemoveMember adjust the approximate member counter, clamping
// at 0 (remove_member at count 0 is a no-op).
func (r *CommunityRegistry) AddMember(id CommunityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return newErr(ErrCommunityUnknown, string(id))
	}
	c.MemberCount++
	return nil
}

func (r *CommunityRegistry) RemoveMember(id CommunityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return newErr(ErrCommunityUnknown, string(id))
	}
	if c.MemberCount > 0 {
		c.MemberCount--
	}
	return nil
}

// restore re-inserts a community reconstructed from a snapshot view, used
// only while importing ledger state.
func (r *CommunityRegistry) restore(c *Community) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	r.byName[strings.ToLower(c.Name)] = c.ID
}

// CanSpendIn reports whether u may be spent within community c: true if
// u.Localities is empty (global) or contains c.
func CanSpendIn(u *Unit, c CommunityID) bool {
	return len(u.Localities) == 0 || u.Localities.has(string(c))
}

// EffectiveValueOutside computes u.Magnitude discounted by the boundary
// fees of every community in u.Localities the unit is being valued outside
// of, unless the unit is global or target is itself one of u.Localities's
// communities.
func EffectiveValueOutside(u *Unit, target *CommunityID, communities *CommunityRegistry) (float64, error) {
	if len(u.Localities) == 0 {
		return u.Magnitude, nil
	}
	if target != nil && u.Localities.has(string(*target)) {
		return u.Magnitude, nil
	}
	value := u.Magnitude
	for _, cid := range u.SortedLocalities() {
		c, err := communities.Get(cid)
		if err != nil {
			return 0, err
		}
		value *= 1 - c.BoundaryFee
	}
	return math.Max(value, 0), nil
}

//------------------------------------------------------------------------
// Purpose registry
//------------------------------------------------------------------------

// PurposeChannel is (id, name, description, valid-recipients,
// conversion-discount, created_at).
type PurposeChannel struct {
	ID                 PurposeID
	Name               string
	Description        string
	Recipients         stringSet // WalletID values
	ConversionDiscount float64
	CreatedAt          time.Time
}

type PurposeRegistry struct {
	mu     sync.RWMutex
	byID   map[PurposeID]*PurposeChannel
	byName map[string]PurposeID
}

func NewPurposeRegistry() *PurposeRegistry {
	return &PurposeRegistry{byID: make(map[PurposeID]*PurposeChannel), byName: make(map[string]PurposeID)}
}

func (r *PurposeRegistry) Create(name, description string, conversionDiscount float64, now time.Time) (*PurposeChannel, error) {
	if conversionDiscount < 0 || conversionDiscount > 1 {
		return nil, newErr(ErrAmount, "conversion discount must be in [0,1]")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &PurposeChannel{
		ID:                 newPurposeID(),
		Name:               name,
		Description:        description,
		Recipients:         newStringSet(),
		ConversionDiscount: conversionDiscount,
		CreatedAt:          now,
	}
	r.byID[p.ID] = p
	r.byName[strings.ToLower(name)] = p.ID
	return p, nil
}

func (r *PurposeRegistry) Get(id PurposeID) (*PurposeChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, newErr(ErrPurposeUnknown, string(id))
	}
	return p, nil
}

func (r *PurposeRegistry) GetByName(name string) (*PurposeChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, newErr(ErrPurposeUnknown, name)
	}
	return r.byID[id], nil
}

func (r *PurposeRegistry) List() []*PurposeChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PurposeChannel, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// restore re-inserts a purpose channel reconstructed from a snapshot view,
// used only while importing ledger state.
func (r *PurposeRegistry) restore(p *PurposeChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	r.byName[strings.ToLower(p.Name)] = p.ID
}

// RegisterRecipient adds wallet to p's valid-recipient set.
func (r *PurposeRegistry) RegisterRecipient(id PurposeID, wallet WalletID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return newErr(ErrPurposeUnknown, string(id))
	}
	p.Recipients[string(wallet)] = struct{}{}
	return nil
}

// IsValidRecipient reports whether wallet may receive purpose-coloured
// units for purpose id.
func (r *PurposeRegistry) IsValidRecipient(id PurposeID, wallet WalletID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	return p.Recipients.has(string(wallet))
}

const defaultBoundaryFee = 0.03
const defaultConversionDiscount = 0.03
