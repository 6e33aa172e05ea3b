// Package checkpoint stores the chain state of an annealing step in a
// bolt database, so that a step can be resumed or handed over to the
// next step.
package checkpoint

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all the data.
var MAIN = []byte("main")

// STATE is the key for the chain state.
var STATE = []byte("state")

// openTimeout is the time to wait for the file lock.
const openTimeout = 5 * time.Second

// Data is the chain state.
type Data struct {
	RunID      string
	Step       int
	Beta       float64
	Iter       int
	Final      bool
	Parameters map[string][]float64
	// Trees are stored in the newick format.
	Trees map[string]string
	// Operators stores operator tuning parameters.
	Operators  map[string]float64
	LogDensity float64
	// Terms is the log-density breakdown (prior, likelihood,
	// reference).
	Terms map[string]float64
}

// IO saves and loads checkpoints.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewIO creates a new IO. Old reports true once seconds passed since
// the last save.
func NewIO(db *bolt.DB, key []byte, seconds float64) (s *IO) {
	s = &IO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
	return
}

// Open opens or creates a state database.
func Open(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
}

// Save saves checkpoint to the database given all the values needed.
func (s *IO) Save(data *Data) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, s.key, dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the checkpoint or nil if there is none.
func (s *IO) Load() (*Data, error) {
	var data *Data

	b, err := LoadData(s.db, s.key)

	if err != nil || b == nil {
		return nil, err
	}

	err = json.Unmarshal(b, &data)

	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	if data.Final {
		log.Infof("Found finished checkpoint of step %d (iter=%v, logP=%v)", data.Step, data.Iter, data.LogDensity)
	} else {
		log.Infof("Found unfinished checkpoint of step %d (iter=%v, logP=%v)", data.Step, data.Iter, data.LogDensity)
	}

	return data, nil
}

// Old returns true if last checkpoint save time too long ago. With a
// non-positive interval every save is due.
func (s *IO) Old() bool {
	return s.seconds <= 0 || time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *IO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}

		err = b.Put(key, data)
		return err
	})
	return err
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Copy copies the state database src into dst. The source must not be
// open for writing by another process.
func Copy(src, dst string) error {
	db, err := bolt.Open(src, 0600, &bolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return err
	}
	defer db.Close()
	err = db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(MAIN) == nil {
			return errors.New("no checkpoint bucket in " + src)
		}
		return tx.CopyFile(dst, 0600)
	})
	if err != nil {
		return err
	}
	log.Debugf("Copied state %s to %s", src, dst)
	return nil
}
