package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"minigames-backend/internal/models"
)

// FileStore keeps every account in memory and rewrites the whole JSON file on each
// mutation. The file maps userId to {id, coins}.
type FileStore struct {
	path           string
	defaultBalance float64

	mu       sync.Mutex
	accounts map[string]*models.UserAccount
}

func NewFileStore(path string, defaultBalance float64) (*FileStore, error) {
	accounts, err := loadAccounts(path)
	if err != nil {
		return nil, err
	}

	return &FileStore{
		path:           path,
		defaultBalance: defaultBalance,
		accounts:       accounts,
	}, nil
}

func loadAccounts(path string) (map[string]*models.UserAccount, error) {
	accounts := make(map[string]*models.UserAccount)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return accounts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return accounts, nil
	}

	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse ledger file %s: %w", path, err)
	}

	for id, account := range accounts {
		if account == nil {
			delete(accounts, id)
			continue
		}
		if account.ID == "" {
			account.ID = id
		}
	}

	return accounts, nil
}

func (s *FileStore) Get(ctx context.Context, userID string) (float64, error) {
	return s.Ensure(ctx, userID, s.defaultBalance)
}

func (s *FileStore) Lookup(_ context.Context, userID string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return 0, false, nil
	}
	return account.Coins, true, nil
}

func (s *FileStore) Ensure(_ context.Context, userID string, balance float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account, ok := s.accounts[userID]; ok {
		return account.Coins, nil
	}

	s.accounts[userID] = models.NewUserAccount(userID, balance)
	if err := s.save(); err != nil {
		delete(s.accounts, userID)
		return 0, err
	}

	return balance, nil
}

func (s *FileStore) Credit(_ context.Context, userID string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, existed := s.accounts[userID]
	if !existed {
		account = models.NewUserAccount(userID, s.defaultBalance)
		s.accounts[userID] = account
	}

	previous := account.Coins
	account.Coins += delta

	if err := s.save(); err != nil {
		if existed {
			account.Coins = previous
		} else {
			delete(s.accounts, userID)
		}
		return 0, err
	}

	return account.Coins, nil
}

func (s *FileStore) Debit(_ context.Context, userID string, amount float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, existed := s.accounts[userID]
	if !existed {
		account = models.NewUserAccount(userID, s.defaultBalance)
	}
	if amount > account.Coins {
		return account.Coins, fmt.Errorf("%w: have %.2f, need %.2f", ErrInsufficientFunds, account.Coins, amount)
	}

	s.accounts[userID] = account
	previous := account.Coins
	account.Coins -= amount

	if err := s.save(); err != nil {
		if existed {
			account.Coins = previous
		} else {
			delete(s.accounts, userID)
		}
		return 0, err
	}

	return account.Coins, nil
}

// Close flushes the current state to disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save()
}

// save writes a temp file next to the ledger and renames it into place.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}

	return nil
}
