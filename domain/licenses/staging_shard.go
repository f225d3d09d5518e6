package licenses

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

var (
	registryKey = database.MakeBucket([]byte("licenses")).Key([]byte("registry"))
	undoBucket  = database.MakeBucket([]byte("licenses-undo"))
)

// licensesStagingShard holds a modified copy of the registry. A block that
// changes no license stages nothing.
type licensesStagingShard struct {
	registry *Registry

	blockHash     *chainhash.Hash
	disconnecting bool
	licenses      licenseSet
}

func (r *Registry) stagingShard(stagingArea *staging.Area) *licensesStagingShard {
	return stagingArea.GetOrCreateShard("MinerLicenses", func() staging.Shard {
		return &licensesStagingShard{registry: r}
	}).(*licensesStagingShard)
}

func (lss *licensesStagingShard) current() licenseSet {
	if lss.licenses != nil {
		return lss.licenses
	}
	return lss.registry.licenses
}

func (lss *licensesStagingShard) staged() licenseSet {
	if lss.licenses == nil {
		lss.licenses = lss.registry.licenses.clone()
	}
	return lss.licenses
}

func (lss *licensesStagingShard) Commit(dbTx database.Transaction) error {
	if lss.licenses == nil {
		return nil
	}
	if lss.disconnecting {
		err := dbTx.Delete(undoBucket.Key(lss.blockHash[:]))
		if err != nil {
			return err
		}
	} else if lss.blockHash != nil {
		prior, err := serializeLicenses(lss.registry.licenses)
		if err != nil {
			return err
		}
		err = dbTx.Put(undoBucket.Key(lss.blockHash[:]), prior)
		if err != nil {
			return err
		}
	}
	snapshot, err := serializeLicenses(lss.licenses)
	if err != nil {
		return err
	}
	return dbTx.Put(registryKey, snapshot)
}

func (lss *licensesStagingShard) OnCommitted() {
	if lss.licenses != nil {
		lss.registry.licenses = lss.licenses
	}
}

func serializeLicenses(licenses licenseSet) ([]byte, error) {
	keys := make([]string, 0, len(licenses))
	for key := range licenses {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	err := wire.WriteVarInt(&buf, 0, uint64(len(keys)))
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		license := licenses[key]
		err := wire.WriteVarBytes(&buf, 0, license.MinerKey)
		if err != nil {
			return nil, err
		}
		err = wire.WriteVarInt(&buf, 0, uint64(len(license.HashRates)))
		if err != nil {
			return nil, err
		}
		for _, hashRate := range license.HashRates {
			err = wire.WriteVarInt(&buf, 0, uint64(hashRate.Height))
			if err != nil {
				return nil, err
			}
			err = wire.WriteVarInt(&buf, 0, uint64(hashRate.HashRate))
			if err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func deserializeLicenses(serialized []byte) (licenseSet, error) {
	r := bytes.NewReader(serialized)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	licenses := make(licenseSet, count)
	for i := uint64(0); i < count; i++ {
		minerKey, err := wire.ReadVarBytes(r, 0, maxMinerScriptSize, "miner key")
		if err != nil {
			return nil, err
		}
		rateCount, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, err
		}
		if rateCount == 0 {
			return nil, errors.Errorf("license %x has no hashrate", minerKey)
		}
		license := &License{MinerKey: minerKey, HashRates: make([]HashRate, rateCount)}
		for j := range license.HashRates {
			height, err := wire.ReadVarInt(r, 0)
			if err != nil {
				return nil, err
			}
			hashRate, err := wire.ReadVarInt(r, 0)
			if err != nil {
				return nil, err
			}
			license.HashRates[j] = HashRate{Height: uint32(height), HashRate: uint16(hashRate)}
		}
		licenses[string(minerKey)] = license
	}
	return licenses, nil
}
