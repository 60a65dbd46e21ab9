// Package storage provides persistent storage for the risk service.
// It uses BoltDB as the underlying storage engine to keep the current trained
// model per kind and the history of served predictions.
//
// The package provides thread-safe operations for storing and retrieving
// time-series prediction records with efficient per-student range queries.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"academic-risk/internal/ml"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	modelsBucket      = "models"      // Bucket name for trained model parameters
	predictionsBucket = "predictions" // Bucket name for served predictions

	dbFile = "academic-risk.db"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(modelsBucket)); err != nil {
			return fmt.Errorf("create models bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Calling it more than once is safe.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

// SaveModel stores tm under name, replacing any previous model.
func (s *Store) SaveModel(name string, tm *ml.TrainedModel) error {
	if s.db == nil {
		return ErrClosed
	}
	if tm == nil {
		return fmt.Errorf("save model %s: nil model", name)
	}
	data, err := json.Marshal(tm)
	if err != nil {
		return fmt.Errorf("marshal model %s: %w", name, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(name), data)
	})
}

// LoadModel returns the model stored under name, or an error matching
// ml.ErrModelNotFound.
func (s *Store) LoadModel(name string) (*ml.TrainedModel, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var tm *ml.TrainedModel
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(modelsBucket)).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ml.ErrModelNotFound, name)
		}
		tm = &ml.TrainedModel{}
		if err := json.Unmarshal(data, tm); err != nil {
			return fmt.Errorf("unmarshal model %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tm, nil
}

// DeleteModel removes the model stored under name. Deleting a missing model
// is not an error.
func (s *Store) DeleteModel(name string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Delete([]byte(name))
	})
}

// ListModels returns the names of stored models in key order.
func (s *Store) ListModels() ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// recordKey builds "<id>_<unixnano>" with the timestamp zero-padded to 20
// digits so byte order matches time order. Times before the epoch map to 0.
func recordKey(id string, t time.Time) []byte {
	nanos := t.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return []byte(fmt.Sprintf("%s_%020d", id, nanos))
}

// getRecordsInRange scans the keys of id between start and end inclusive,
// unmarshalling each value with fn. Malformed records are logged and skipped.
func (s *Store) getRecordsInRange(bucketName, id string, start, end time.Time, fn func([]byte) error) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()

		prefix := []byte(id + "_")
		startKey := recordKey(id, start)
		endKey := recordKey(id, end)

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			if err := fn(v); err != nil {
				log.Debug().Err(err).
					Str("bucket", bucketName).
					Str("key", string(k)).
					Msg("Skipping malformed record")
			}
		}
		return nil
	})
}
