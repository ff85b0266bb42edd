// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/farmers"
)

func HandleSignUp(svc *farmers.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in farmers.Credentials
		if err := bindJSON(c, &in); err != nil {
			writeError(c, err)
			return
		}
		user, err := svc.SignUp(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
	}
}

func HandleLogin(svc *farmers.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in farmers.Credentials
		if err := bindJSON(c, &in); err != nil {
			writeError(c, err)
			return
		}
		user, err := svc.Login(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

func HandleRegisterFarmer(svc *farmers.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in farmers.FarmerInfo
		if err := bindJSON(c, &in); err != nil {
			writeError(c, err)
			return
		}
		user, farmerID, err := svc.RegisterFarmer(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":  "Farmer info saved and linked to user",
			"user":     user,
			"farmerId": farmerID,
		})
	}
}

func HandleGetFarmer(svc *farmers.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := svc.GetFarmer(c.Request.Context(), c.Param("farmerId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, fields)
	}
}

func HandleUpdateFarmer(svc *farmers.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in farmers.FarmerUpdate
		if err := bindJSON(c, &in); err != nil {
			writeError(c, err)
			return
		}
		fields, err := svc.UpdateFarmer(c.Request.Context(), c.Param("farmerId"), in)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to update farmer profile",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Farmer profile updated successfully",
			"data":    fields,
		})
	}
}
