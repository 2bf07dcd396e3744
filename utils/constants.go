// File: utils/constants.go
package utils

import "time"

// LockKeyPrefix is the prefix used for Redis provisioning lock keys.
const LockKeyPrefix = "provision:lock:"

// HealthCheckInterval is how often the health monitor pings its dependencies.
const HealthCheckInterval = 60 * time.Second
