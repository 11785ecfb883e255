// Package model defines the records mirrored from the pools and matches services.
package model

// Pool is a location-based group of users as reported by the pools service.
type Pool struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location,omitempty"`
	MemberCount int        `json:"member_count"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
}

// HasCapacity reports whether the pool can take another member.
func (p Pool) HasCapacity(maxSize int) bool {
	return p.MemberCount < maxSize
}

// PoolMembership links a user to the single pool they belong to.
type PoolMembership struct {
	PoolID   string    `json:"pool_id"`
	UserID   string    `json:"user_id"`
	CoordX   *float64  `json:"coord_x,omitempty"`
	CoordY   *float64  `json:"coord_y,omitempty"`
	JoinedAt Timestamp `json:"joined_at"`
}

// Coordinates is a partial coordinate pair. Nil fields are left untouched upstream.
type Coordinates struct {
	CoordX *float64 `json:"coord_x,omitempty"`
	CoordY *float64 `json:"coord_y,omitempty"`
}

// IsEmpty reports whether neither coordinate is set.
func (c Coordinates) IsEmpty() bool {
	return c.CoordX == nil && c.CoordY == nil
}

// UserPool merges a membership with the details of its pool.
type UserPool struct {
	PoolID      string    `json:"pool_id"`
	PoolName    string    `json:"pool_name"`
	Location    string    `json:"location,omitempty"`
	MemberCount int       `json:"member_count"`
	JoinedAt    Timestamp `json:"joined_at"`
	UserID      string    `json:"user_id"`
}

// PoolNameFor returns the name used when a pool is created for a location.
func PoolNameFor(location string) string {
	return "Pool for " + location
}
