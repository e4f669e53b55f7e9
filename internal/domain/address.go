package domain

import "time"

// Address — адрес доставки, принадлежащий ровно одному клиенту.
// Заказ хранит только ссылку на адрес, поля подтягиваются при чтении.
type Address struct {
	ID         int64
	CustomerID int64
	Phone      string
	Street     string
	City       string
	PostalCode string
	CreatedAt  time.Time
}

// OwnedBy проверяет владельца адреса.
func (a *Address) OwnedBy(customerID int64) bool {
	return a.CustomerID == customerID
}
