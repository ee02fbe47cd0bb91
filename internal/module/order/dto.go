package order

// CreateOrderRequest is the request body for creating an order.
type CreateOrderRequest struct {
	CustomerName    string                   `json:"customer_name" binding:"required"`
	CustomerEmail   string                   `json:"customer_email" binding:"required,email"`
	CustomerPhone   string                   `json:"customer_phone"`
	ShippingAddress string                   `json:"shipping_address"`
	ShippingCity    string                   `json:"shipping_city"`
	ShippingCountry string                   `json:"shipping_country"`
	Items           []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CreateOrderItemRequest is a line item in a create-order request.
type CreateOrderItemRequest struct {
	ProductName string `json:"product_name" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	UnitPrice   int64  `json:"unit_price" binding:"required,min=0"`
}
