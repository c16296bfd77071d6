package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// MarkupConfidence is the confidence of a receipt read from schema.org markup.
const MarkupConfidence = 95

var orderTypes = map[string]bool{
	"Order":   true,
	"Invoice": true,
}

// HasStructuredMarkup reports whether an HTML body carries a schema.org Order or
// Invoice in JSON-LD, microdata or RDFa.
func HasStructuredMarkup(body string) bool {
	return findOrder(structuredItems(body)) != nil
}

// ExtractStructuredOrder reads the first Order or Invoice in the markup.
func ExtractStructuredOrder(body string) (*Extraction, bool) {
	order := findOrder(structuredItems(body))
	if order == nil {
		return nil, false
	}
	return orderExtraction(order), true
}

// structuredItems collects top-level items from all three markup syntaxes and
// returns them in the JSON-LD object shape.
func structuredItems(body string) []map[string]any {
	if !strings.Contains(body, "ld+json") && !strings.Contains(body, "itemscope") &&
		!strings.Contains(body, "typeof") {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var items []map[string]any
	items = append(items, jsonLDItems(doc)...)
	walkItems(doc, microdata, nil, &items)
	walkItems(doc, rdfa, nil, &items)
	return items
}

func jsonLDItems(root *html.Node) []map[string]any {
	var out []map[string]any
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script &&
			strings.EqualFold(attr(n, "type"), "application/ld+json") {
			dec := json.NewDecoder(strings.NewReader(textContent(n)))
			dec.UseNumber()
			var v any
			if err := dec.Decode(&v); err == nil {
				out = append(out, flattenJSONLD(v)...)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func flattenJSONLD(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range t {
			out = append(out, flattenJSONLD(e)...)
		}
		return out
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			return flattenJSONLD(graph)
		}
		return []map[string]any{t}
	}
	return nil
}

// syntax describes how an attribute-based markup flavour marks items and properties.
type syntax struct {
	scope    func(n *html.Node) (string, bool)
	property func(n *html.Node) string
}

var microdata = syntax{
	scope: func(n *html.Node) (string, bool) {
		if !hasAttr(n, "itemscope") {
			return "", false
		}
		return attr(n, "itemtype"), true
	},
	property: func(n *html.Node) string { return attr(n, "itemprop") },
}

var rdfa = syntax{
	scope: func(n *html.Node) (string, bool) {
		if !hasAttr(n, "typeof") {
			return "", false
		}
		return attr(n, "typeof"), true
	},
	property: func(n *html.Node) string { return attr(n, "property") },
}

func walkItems(n *html.Node, s syntax, current map[string]any, out *[]map[string]any) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		prop := s.property(c)
		if typ, ok := s.scope(c); ok {
			child := map[string]any{"@type": cleanType(typ)}
			walkItems(c, s, child, out)
			if prop != "" && current != nil {
				addProperty(current, prop, child)
			} else {
				*out = append(*out, child)
			}
			continue
		}
		if prop != "" && current != nil {
			addProperty(current, prop, nodeValue(c))
		}
		walkItems(c, s, current, out)
	}
}

func addProperty(item map[string]any, names string, value any) {
	for _, name := range strings.Fields(names) {
		name = cleanType(name)
		switch existing := item[name].(type) {
		case nil:
			item[name] = value
		case []any:
			item[name] = append(existing, value)
		default:
			item[name] = []any{existing, value}
		}
	}
}

// cleanType strips vocabulary prefixes: "http://schema.org/Order" and "schema:Order" become "Order".
func cleanType(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.LastIndexAny(t, "/:"); i >= 0 {
		t = t[i+1:]
	}
	return t
}

func nodeValue(n *html.Node) string {
	if v, ok := attrOK(n, "content"); ok {
		return strings.TrimSpace(v)
	}
	switch n.DataAtom {
	case atom.A, atom.Link:
		return attr(n, "href")
	case atom.Img:
		return attr(n, "src")
	case atom.Time:
		if v, ok := attrOK(n, "datetime"); ok {
			return v
		}
	}
	return strings.TrimSpace(textContent(n))
}

// findOrder searches items and their nested values for an Order or Invoice.
func findOrder(items []map[string]any) map[string]any {
	for _, it := range items {
		if found := findOrderIn(it); found != nil {
			return found
		}
	}
	return nil
}

func findOrderIn(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		for _, typ := range types(t["@type"]) {
			if orderTypes[cleanType(typ)] {
				return t
			}
		}
		for k, child := range t {
			if k == "@type" || k == "@context" {
				continue
			}
			if found := findOrderIn(child); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range t {
			if found := findOrderIn(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func types(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Fields(t)
	case []any:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func orderExtraction(order map[string]any) *Extraction {
	ext := &Extraction{
		Method:     model.MethodStructuredMarkup,
		Confidence: MarkupConfidence,
	}

	for _, key := range []string{"seller", "merchant", "provider", "broker"} {
		if name := nameOf(order[key]); name != "" {
			ext.Merchant = name
			break
		}
	}
	for _, key := range []string{"orderNumber", "confirmationNumber", "identifier"} {
		if id := stringOf(order[key]); id != "" {
			ext.OrderID = id
			break
		}
	}

	ext.Currency = strings.ToUpper(stringOf(order["priceCurrency"]))
	for _, key := range []string{"totalPaymentDue", "priceSpecification"} {
		if price, ok := first(order[key]).(map[string]any); ok {
			if amt, ok := amountOf(first(price["price"]), first(price["value"])); ok {
				ext.Total = decimal.NewNullDecimal(amt)
			}
			if ext.Currency == "" {
				ext.Currency = strings.ToUpper(stringOf(price["priceCurrency"]))
			}
		}
		if ext.Total.Valid {
			break
		}
	}
	if !ext.Total.Valid {
		if amt, ok := amountOf(first(order["price"]), first(order["totalPrice"])); ok {
			ext.Total = decimal.NewNullDecimal(amt)
		}
	}

	for _, key := range []string{"orderDate", "paymentDueDate", "dateCreated"} {
		if d := ParseDate(stringOf(order[key])); d != nil {
			ext.PurchaseDate = d
			break
		}
	}

	ext.LineItems = append(ext.LineItems, offerItems(order["acceptedOffer"])...)
	ext.LineItems = append(ext.LineItems, orderedItems(order["orderedItem"])...)
	return ext
}

func offerItems(v any) []model.LineItem {
	var out []model.LineItem
	for _, o := range list(v) {
		offer, ok := o.(map[string]any)
		if !ok {
			continue
		}
		item := model.LineItem{Name: nameOf(offer["itemOffered"]), Quantity: 1}
		if item.Name == "" {
			continue
		}
		item.Description, item.CategoryHint = productDetail(offer["itemOffered"])
		if amt, ok := amountOf(first(offer["price"])); ok {
			item.UnitPrice = amt
		}
		if q := quantityOf(offer["eligibleQuantity"]); q > 0 {
			item.Quantity = q
		}
		out = append(out, item)
	}
	return out
}

func orderedItems(v any) []model.LineItem {
	var out []model.LineItem
	for _, o := range list(v) {
		oi, ok := o.(map[string]any)
		if !ok {
			continue
		}
		product := oi["orderedItem"]
		name := nameOf(product)
		if name == "" {
			product = oi
			name = nameOf(oi)
		}
		if name == "" {
			continue
		}
		item := model.LineItem{Name: name, Quantity: 1}
		item.Description, item.CategoryHint = productDetail(product)
		if q := quantityOf(oi["orderQuantity"]); q > 0 {
			item.Quantity = q
		}
		out = append(out, item)
	}
	return out
}

// productDetail reads a Product's description and category. Category paths such as
// "Grocery > Dairy" keep their most specific segment.
func productDetail(v any) (description, category string) {
	product, ok := first(v).(map[string]any)
	if !ok {
		return "", ""
	}
	description = stringOf(product["description"])
	category = nameOf(product["category"])
	if i := strings.LastIndexAny(category, ">/"); i >= 0 {
		category = strings.TrimSpace(category[i+1:])
	}
	return description, strings.ToLower(category)
}

func quantityOf(v any) int {
	if m, ok := first(v).(map[string]any); ok {
		v = m["value"]
	}
	n, err := strconv.Atoi(strings.TrimSpace(stringOf(v)))
	if err != nil {
		return 0
	}
	return n
}

func nameOf(v any) string {
	switch t := first(v).(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return stringOf(t["name"])
	}
	return ""
}

func stringOf(v any) string {
	switch t := first(v).(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func amountOf(values ...any) (decimal.Decimal, bool) {
	for _, v := range values {
		s := stringOf(v)
		if s == "" {
			continue
		}
		if amt, _, ok := ParseAmount(s); ok {
			return amt.Abs(), true
		}
	}
	return decimal.Zero, false
}

func first(v any) any {
	if l, ok := v.([]any); ok {
		if len(l) == 0 {
			return nil
		}
		return l[0]
	}
	return v
}

func list(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrOK(n, key)
	return ok
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
