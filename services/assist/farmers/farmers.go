// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package farmers manages app users and their farm profiles in Airtable.
package farmers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/troforte/assist/services/assist/apperr"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 10

const (
	fieldEmail    = "Email"
	fieldPassword = "Password"
	fieldUserInfo = "UserInfo"
)

// Store is the Airtable surface the service needs.
type Store interface {
	Select(ctx context.Context, table, formula string, maxRecords int) ([]Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (*Record, error)
	Update(ctx context.Context, table, id string, fields map[string]any) (*Record, error)
	Find(ctx context.Context, table, id string) (*Record, bool, error)
}

// Credentials is the sign-up and login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FarmerInfo is the register-farmer body.
type FarmerInfo struct {
	UserID           string `json:"userId"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Phone            string `json:"phone"`
	DateOfBirth      string `json:"dateOfBirth"`
	FarmName         string `json:"farmName"`
	FarmAddress      string `json:"farmAddress"`
	FarmSize         string `json:"farmSize"`
	FarmType         string `json:"farmType"`
	EstablishedYear  string `json:"establishedYear"`
	PrimaryCrops     string `json:"primaryCrops"`
	FarmingMethod    string `json:"farmingMethod"`
	Certifications   string `json:"certifications"`
	EmergencyContact string `json:"emergencyContact"`
	EmergencyPhone   string `json:"emergencyPhone"`
	Units            string `json:"units"`
	Notifications    any    `json:"notifications"`
}

// FarmerUpdate is the profile update body. List fields arrive as arrays.
type FarmerUpdate struct {
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName"`
	Phone            string   `json:"phone"`
	DateOfBirth      string   `json:"dateOfBirth"`
	FarmName         string   `json:"farmName"`
	FarmAddress      string   `json:"farmAddress"`
	FarmSize         string   `json:"farmSize"`
	FarmType         string   `json:"farmType"`
	EstablishedYear  string   `json:"establishedYear"`
	PrimaryCrops     []string `json:"primaryCrops"`
	FarmingMethod    string   `json:"farmingMethod"`
	Certifications   []string `json:"certifications"`
	EmergencyContact string   `json:"emergencyContact"`
	EmergencyPhone   string   `json:"emergencyPhone"`
	Units            string   `json:"units"`
	Notifications    any      `json:"notifications"`
}

// Service implements sign-up, login, and farmer profiles.
type Service struct {
	store Store
	cost  int
}

// NewService returns a Service over store.
func NewService(store Store) *Service {
	return &Service{store: store, cost: BcryptCost}
}

// SignUp creates a user with a bcrypt-hashed password.
func (s *Service) SignUp(ctx context.Context, in Credentials) (map[string]any, error) {
	if in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}
	existing, err := s.store.Select(ctx, UsersTable, "{Email} = "+QuoteFormula(in.Email), 1)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.Validation("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal("Internal Server Error", err)
	}
	rec, err := s.store.Create(ctx, UsersTable, map[string]any{
		fieldEmail:    in.Email,
		fieldPassword: string(hash),
	})
	if err != nil {
		return nil, err
	}
	slog.Info("User registered", "user_id", rec.ID)
	return publicUser(rec, false), nil
}

// Login checks the password and returns the user with its farmerId.
func (s *Service) Login(ctx context.Context, in Credentials) (map[string]any, error) {
	if in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}
	records, err := s.store.Select(ctx, UsersTable, "{Email} = "+QuoteFormula(in.Email), 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound("User not found")
	}
	rec := &records[0]
	hash, _ := rec.Fields[fieldPassword].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			slog.Warn("Stored password hash is unusable", "user_id", rec.ID, "error", err)
		}
		return nil, apperr.Unauthorized("Invalid password")
	}
	return publicUser(rec, true), nil
}

// RegisterFarmer creates a farmer profile and links it to the user. It
// returns the updated user record and the new farmer id.
func (s *Service) RegisterFarmer(ctx context.Context, in FarmerInfo) (map[string]any, string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, "", apperr.Validation("userId is required")
	}
	notifications := "[]"
	if in.Notifications != nil {
		raw, err := json.Marshal(in.Notifications)
		if err != nil {
			return nil, "", apperr.Validation("Invalid notifications")
		}
		notifications = string(raw)
	}
	farmer, err := s.store.Create(ctx, FarmerTable, map[string]any{
		"FirstName":        in.FirstName,
		"LastName":         in.LastName,
		"Phone":            in.Phone,
		"DateOfBirth":      in.DateOfBirth,
		"FarmName":         in.FarmName,
		"FarmAddress":      in.FarmAddress,
		"FarmSize":         in.FarmSize,
		"FarmType":         in.FarmType,
		"EstablishedYear":  in.EstablishedYear,
		"PrimaryCrops":     in.PrimaryCrops,
		"FarmingMethod":    in.FarmingMethod,
		"Certifications":   in.Certifications,
		"EmergencyContact": in.EmergencyContact,
		"EmergencyPhone":   in.EmergencyPhone,
		"Units":            in.Units,
		"Notifications":    notifications,
	})
	if err != nil {
		return nil, "", err
	}
	user, err := s.store.Update(ctx, UsersTable, in.UserID, map[string]any{
		fieldUserInfo: []string{farmer.ID},
	})
	if err != nil {
		return nil, "", err
	}
	return publicUser(user, false), farmer.ID, nil
}

// GetFarmer returns the profile fields.
func (s *Service) GetFarmer(ctx context.Context, farmerID string) (map[string]any, error) {
	rec, found, err := s.store.Find(ctx, FarmerTable, farmerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("Farmer not found")
	}
	return rec.Fields, nil
}

// UpdateFarmer replaces the profile fields and returns the stored result.
func (s *Service) UpdateFarmer(ctx context.Context, farmerID string, in FarmerUpdate) (map[string]any, error) {
	notifications, err := json.Marshal(in.Notifications)
	if err != nil {
		return nil, apperr.Validation("Invalid notifications")
	}
	rec, err := s.store.Update(ctx, FarmerTable, farmerID, map[string]any{
		"FirstName":        in.FirstName,
		"LastName":         in.LastName,
		"Phone":            in.Phone,
		"DateOfBirth":      in.DateOfBirth,
		"FarmName":         in.FarmName,
		"FarmAddress":      in.FarmAddress,
		"FarmSize":         in.FarmSize,
		"FarmType":         in.FarmType,
		"EstablishedYear":  in.EstablishedYear,
		"PrimaryCrops":     strings.Join(in.PrimaryCrops, ","),
		"FarmingMethod":    in.FarmingMethod,
		"Certifications":   strings.Join(in.Certifications, ","),
		"EmergencyContact": in.EmergencyContact,
		"EmergencyPhone":   in.EmergencyPhone,
		"Units":            in.Units,
		"Notifications":    string(notifications),
	})
	if err != nil {
		return nil, err
	}
	return rec.Fields, nil
}

// publicUser flattens a user record for responses. The password hash is
// always removed.
func publicUser(rec *Record, withFarmer bool) map[string]any {
	out := make(map[string]any, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		if k == fieldPassword {
			continue
		}
		out[k] = v
	}
	out["id"] = rec.ID
	if withFarmer {
		var farmerID any
		if links, ok := rec.Fields[fieldUserInfo].([]any); ok && len(links) > 0 {
			farmerID = links[0]
		}
		out["farmerId"] = farmerID
	}
	return out
}
