package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonLDOrder = `<html><head>
<script type="application/ld+json">
{
  "@context": "http://schema.org",
  "@type": "Order",
  "merchant": {"@type": "Organization", "name": "Corner Bakery"},
  "orderNumber": "CB-20931",
  "orderDate": "2024-04-12T09:14:00-07:00",
  "priceCurrency": "USD",
  "price": "18.40",
  "acceptedOffer": [
    {"@type": "Offer", "itemOffered": {"@type": "Product", "name": "Croissant", "description": "Butter, baked today", "category": "Grocery > Bakery"}, "price": "4.20", "eligibleQuantity": {"@type": "QuantitativeValue", "value": "2"}},
    {"@type": "Offer", "itemOffered": {"@type": "Product", "name": "Latte", "category": "Beverages"}, "price": 10.00}
  ]
}
</script></head><body><p>Thanks!</p></body></html>`

const microdataOrder = `<html><body>
<div itemscope itemtype="http://schema.org/Order">
  <div itemprop="seller" itemscope itemtype="http://schema.org/Organization">
    <span itemprop="name">Blue Bottle</span>
  </div>
  <span itemprop="orderNumber">BB-1</span>
  <meta itemprop="priceCurrency" content="USD">
  <span itemprop="price">$7.25</span>
  <time itemprop="orderDate" datetime="2024-05-01">May 1</time>
</div>
</body></html>`

const rdfaOrder = `<html><body vocab="http://schema.org/">
<div typeof="Invoice">
  <div property="provider" typeof="Organization"><span property="name">DigitalOcean</span></div>
  <span property="confirmationNumber">INV-778</span>
  <div property="totalPaymentDue" typeof="PriceSpecification">
    <span property="price">12.00</span>
    <span property="priceCurrency">USD</span>
  </div>
  <span property="paymentDueDate">2024-07-01</span>
</div>
</body></html>`

func TestExtractStructuredOrder(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		merchant  string
		orderID   string
		total     string
		currency  string
		date      string
		itemCount int
	}{
		{name: "json-ld", body: jsonLDOrder, merchant: "Corner Bakery", orderID: "CB-20931", total: "18.4", currency: "USD", date: "2024-04-12", itemCount: 2},
		{name: "microdata", body: microdataOrder, merchant: "Blue Bottle", orderID: "BB-1", total: "7.25", currency: "USD", date: "2024-05-01"},
		{name: "rdfa invoice", body: rdfaOrder, merchant: "DigitalOcean", orderID: "INV-778", total: "12", currency: "USD", date: "2024-07-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, HasStructuredMarkup(tt.body))

			ext, ok := ExtractStructuredOrder(tt.body)
			require.True(t, ok)
			assert.Equal(t, tt.merchant, ext.Merchant)
			assert.Equal(t, tt.orderID, ext.OrderID)
			require.True(t, ext.Total.Valid)
			assert.Equal(t, tt.total, ext.Total.Decimal.String())
			assert.Equal(t, tt.currency, ext.Currency)
			require.NotNil(t, ext.PurchaseDate)
			assert.Equal(t, tt.date, ext.PurchaseDate.Format("2006-01-02"))
			assert.Len(t, ext.LineItems, tt.itemCount)
			assert.Equal(t, MarkupConfidence, ext.Confidence)
		})
	}
}

func TestExtractStructuredOrder_LineItems(t *testing.T) {
	ext, ok := ExtractStructuredOrder(jsonLDOrder)
	require.True(t, ok)
	require.Len(t, ext.LineItems, 2)
	assert.Equal(t, "Croissant", ext.LineItems[0].Name)
	assert.Equal(t, 2, ext.LineItems[0].Quantity)
	assert.Equal(t, "4.2", ext.LineItems[0].UnitPrice.String())
	assert.Equal(t, "Butter, baked today", ext.LineItems[0].Description)
	assert.Equal(t, "bakery", ext.LineItems[0].CategoryHint)
	assert.Equal(t, "Latte", ext.LineItems[1].Name)
	assert.Equal(t, 1, ext.LineItems[1].Quantity)
	assert.Empty(t, ext.LineItems[1].Description)
	assert.Equal(t, "beverages", ext.LineItems[1].CategoryHint)
}

func TestExtractStructuredOrder_OrderedItemCategory(t *testing.T) {
	body := `<script type="application/ld+json">{"@type":"Order","seller":"Tiny Shop","price":"9.00",
		"orderedItem":[{"@type":"OrderItem","orderQuantity":3,
			"orderedItem":{"@type":"Product","name":"Pencil","description":"HB","category":{"@type":"Thing","name":"Office Supplies"}}}]}</script>`
	ext, ok := ExtractStructuredOrder(body)
	require.True(t, ok)
	require.Len(t, ext.LineItems, 1)
	assert.Equal(t, "Pencil", ext.LineItems[0].Name)
	assert.Equal(t, 3, ext.LineItems[0].Quantity)
	assert.Equal(t, "HB", ext.LineItems[0].Description)
	assert.Equal(t, "office supplies", ext.LineItems[0].CategoryHint)
}

func TestHasStructuredMarkup_Negative(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "plain html", body: "<p>Your receipt</p>"},
		{name: "other json-ld type", body: `<script type="application/ld+json">{"@type":"EmailMessage","name":"x"}</script>`},
		{name: "broken json-ld", body: `<script type="application/ld+json">{"@type":"Order",</script>`},
		{name: "empty", body: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, HasStructuredMarkup(tt.body))
		})
	}
}

func TestJSONLDGraph(t *testing.T) {
	body := `<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
		{"@type":"WebPage","name":"x"},
		{"@type":["Order"],"seller":"Tiny Shop","price":"3.00"}
	]}</script>`
	ext, ok := ExtractStructuredOrder(body)
	require.True(t, ok)
	assert.Equal(t, "Tiny Shop", ext.Merchant)
	assert.Nil(t, ext.PurchaseDate)
}

func TestHTMLToText(t *testing.T) {
	body := `<html><head><style>p{}</style><title>t</title></head><body>
<table><tr><td>Subtotal</td><td>$10.00</td></tr><tr><td>Total</td><td>$10.80</td></tr></table>
<p>Thanks&nbsp;for   shopping<br>See you</p><script>var x=1;</script></body></html>`

	got := HTMLToText(body)
	assert.Contains(t, got, "Subtotal $10.00")
	assert.Contains(t, got, "Total $10.80")
	assert.Contains(t, got, "Thanks for shopping\nSee you")
	assert.NotContains(t, got, "var x")
	assert.NotContains(t, got, "p{}")
}
