// Package licenses keeps the registry of licensed miners and the per-round
// block quotas derived from their hashrates.
package licenses

import (
	"bytes"
	"encoding/hex"
	"math"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// HashRate is the hashrate a license announced at a height.
type HashRate struct {
	Height   uint32
	HashRate uint16
}

// License is the hashrate history of one licensed miner.
type License struct {
	MinerKey  []byte
	HashRates []HashRate
}

// Latest returns the most recently announced hashrate.
func (l *License) Latest() HashRate {
	return l.HashRates[len(l.HashRates)-1]
}

func (l *License) clone() *License {
	return &License{
		MinerKey:  append([]byte(nil), l.MinerKey...),
		HashRates: append([]HashRate(nil), l.HashRates...),
	}
}

type licenseSet map[string]*License

func (s licenseSet) clone() licenseSet {
	clone := make(licenseSet, len(s))
	for key, license := range s {
		clone[key] = license.clone()
	}
	return clone
}

// Registry holds the licenses of the active chain.
type Registry struct {
	db       database.Database
	params   *netparams.Params
	licenses licenseSet
}

// New loads the registry stored in db.
func New(db database.Database, params *netparams.Params) (*Registry, error) {
	r := &Registry{db: db, params: params, licenses: make(licenseSet)}
	snapshot, err := db.Get(registryKey)
	if database.IsNotFoundError(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	r.licenses, err = deserializeLicenses(snapshot)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Licenses returns copies of all licenses ordered by miner key.
func (r *Registry) Licenses() []*License {
	return r.licenses.sorted()
}

func (s licenseSet) sorted() []*License {
	licenses := make([]*License, 0, len(s))
	for _, license := range s {
		licenses = append(licenses, license.clone())
	}
	sort.Slice(licenses, func(i, j int) bool {
		return bytes.Compare(licenses[i].MinerKey, licenses[j].MinerKey) < 0
	})
	return licenses
}

// StartBlock prepares stagingArea to record the license changes of the
// block with the given hash.
func (r *Registry) StartBlock(stagingArea *staging.Area, blockHash *chainhash.Hash) {
	r.stagingShard(stagingArea).blockHash = blockHash
}

// HandleTx applies the announcements of tx, confirmed at height, to the
// staged registry. prevOuts are the outputs tx spends.
func (r *Registry) HandleTx(stagingArea *staging.Area, tx *wire.MsgTx, prevOuts []*wire.TxOut, height uint32) {
	announcements := Announcements(tx, prevOuts, r.params.LicenseIssuerScript)
	if len(announcements) == 0 {
		return
	}
	licenses := r.stagingShard(stagingArea).staged()
	for _, announcement := range announcements {
		applyAnnouncement(licenses, announcement, height)
	}
}

func applyAnnouncement(licenses licenseSet, announcement *Announcement, height uint32) {
	key := string(announcement.MinerKey)
	license, ok := licenses[key]
	if !ok {
		if announcement.HashRate == 0 {
			return
		}
		licenses[key] = &License{
			MinerKey:  append([]byte(nil), announcement.MinerKey...),
			HashRates: []HashRate{{Height: height, HashRate: announcement.HashRate}},
		}
		log.Infof("Licensed miner %s with hashrate %d at height %d",
			hex.EncodeToString(announcement.MinerKey), announcement.HashRate, height)
		return
	}
	if license.Latest().Height >= height {
		return
	}
	license.HashRates = append(license.HashRates, HashRate{Height: height, HashRate: announcement.HashRate})
}

// HandleRoundEnd drops the licenses whose latest hashrate is zero when the
// block at height closes a mining round.
func (r *Registry) HandleRoundEnd(stagingArea *staging.Area, height uint32) {
	if !r.IsLastBlockInRound(height) {
		return
	}
	shard := r.stagingShard(stagingArea)
	current := shard.current()
	for key, license := range current {
		if license.Latest().HashRate != 0 {
			continue
		}
		delete(shard.staged(), key)
		log.Infof("Revoked license of miner %s at height %d", hex.EncodeToString(license.MinerKey), height)
	}
}

// DisconnectBlock stages the registry as it was before the block with the
// given hash.
func (r *Registry) DisconnectBlock(stagingArea *staging.Area, blockHash *chainhash.Hash) error {
	undo, err := r.db.Get(undoBucket.Key(blockHash[:]))
	if database.IsNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}
	prior, err := deserializeLicenses(undo)
	if err != nil {
		return err
	}
	shard := r.stagingShard(stagingArea)
	shard.blockHash = blockHash
	shard.disconnecting = true
	shard.licenses = prior
	return nil
}

// IsLastBlockInRound returns whether height closes a mining round.
func (r *Registry) IsLastBlockInRound(height uint32) bool {
	return height%r.params.MiningRoundSize == r.params.MiningRoundSize-1
}

// RoundStart returns the first height of the round containing height.
func (r *Registry) RoundStart(height uint32) uint32 {
	start := height - height%r.params.MiningRoundSize
	if start < r.params.FirstMiningRoundHeight {
		return r.params.FirstMiningRoundHeight
	}
	return start
}

// HashRate returns the hashrate the miner identified by minerKey may use
// for the round containing height: its latest announcement at the last
// block of a round, or else the latest announcement made before the round
// started.
func (r *Registry) HashRate(minerKey []byte, height uint32) uint16 {
	license, ok := r.licenses[string(minerKey)]
	if !ok {
		return 0
	}
	if r.IsLastBlockInRound(height) {
		return license.Latest().HashRate
	}
	roundStart := r.RoundStart(height)
	for i := len(license.HashRates) - 1; i >= 0; i-- {
		if license.HashRates[i].Height < roundStart {
			return license.HashRates[i].HashRate
		}
	}
	return 0
}

func (r *Registry) hashRateSum(height uint32) float64 {
	var sum float64
	for _, license := range r.licenses {
		sum += float64(r.HashRate(license.MinerKey, height))
	}
	return sum
}

// BlockQuota returns the number of blocks the miner identified by minerKey
// may mine in the round containing height: its share of the licensed
// hashrate times the round size, rounded, and at least one.
func (r *Registry) BlockQuota(minerKey []byte, height uint32) int {
	sum := r.hashRateSum(height)
	if sum == 0 {
		return 0
	}
	share := float64(r.HashRate(minerKey, height)) / sum
	return int(math.Max(1, math.Round(float64(r.params.MiningRoundSize)*share)))
}

// RoundState is what a round so far tells about who may mine its next
// block.
type RoundState struct {
	// MinedBy counts the blocks of the round mined by each miner key.
	MinedBy map[string]int

	// LongestGap is the longest time between consecutive blocks of the
	// round, including the gap up to the candidate block.
	LongestGap time.Duration
}

// CanMine returns whether the miner paid by pkScript may mine a block at
// height given the state of the round so far. A licensed miner may exceed
// its quota once the round is open: when miners holding at least half the
// hashrate have used up their quota, or when a gap between blocks exceeded
// the maximum closed round time.
func (r *Registry) CanMine(pkScript []byte, height uint32, round *RoundState) bool {
	minerKey := MinerKey(pkScript)
	if r.HashRate(minerKey, height) == 0 {
		return false
	}
	if r.isOpenRound(height, round) {
		return true
	}
	return round.MinedBy[string(minerKey)] < r.BlockQuota(minerKey, height)
}

func (r *Registry) isOpenRound(height uint32, round *RoundState) bool {
	if round.LongestGap > r.params.MaxClosedRoundTime {
		return true
	}
	sum := r.hashRateSum(height)
	if sum == 0 {
		return false
	}
	var saturated float64
	for key, license := range r.licenses {
		if round.MinedBy[key] >= r.BlockQuota(license.MinerKey, height) {
			saturated += float64(r.HashRate(license.MinerKey, height))
		}
	}
	return saturated/sum >= 0.5
}
