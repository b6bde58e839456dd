package domain

import "time"

// Customer is the storefront customer record.
type Customer struct {
	CustomerID string    `json:"id" dynamodbav:"customer_id"`
	Email      string    `json:"email" dynamodbav:"email"`
	FirstName  string    `json:"first_name" dynamodbav:"first_name"`
	LastName   string    `json:"last_name" dynamodbav:"last_name"`
	Phone      *string   `json:"phone,omitempty" dynamodbav:"phone"`
	HasAccount bool      `json:"has_account" dynamodbav:"has_account"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" dynamodbav:"updated_at"`
}
