package session

import "testing"

import "github.com/stretchr/testify/assert"

func TestComputePriority_CryptoTheftHighUrgency(t *testing.T) {
	// urgency=high, category=crypto_theft => clamp(1+4+2, 1, 10) = 7
	p := ComputePriority(CustomerData{Category: "crypto_theft", Urgency: UrgencyHigh})
	assert.Equal(t, 7, p)
}

func TestComputePriority_ClampsAtTen(t *testing.T) {
	p := ComputePriority(CustomerData{VIP: true, Premium: true, Urgency: UrgencyCritical, Category: "crypto_theft"})
	assert.Equal(t, 10, p)
}

func TestComputePriority_BaseCase(t *testing.T) {
	p := ComputePriority(CustomerData{})
	assert.Equal(t, 1, p)
}

func TestComputePriority_Onboarding(t *testing.T) {
	p := ComputePriority(CustomerData{Category: "onboarding"})
	assert.Equal(t, 2, p)
}
