package types

import (
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRatingsRoundsToOneDecimal(t *testing.T) {
	assert.Equal(t, Ratings{}, ComputeRatings(nil))
	assert.Equal(t, Ratings{Average: 4.3, Count: 3}, ComputeRatings([]int{5, 4, 4}))
	assert.Equal(t, Ratings{Average: 3.5, Count: 2}, ComputeRatings([]int{3, 4}))

	// 23/20 is exactly 1.15; scaling the float mean by ten lands just below 11.5.
	scores := make([]int, 20)
	for i := range scores {
		scores[i] = 1
	}
	scores[0], scores[1], scores[2] = 2, 2, 2
	assert.Equal(t, Ratings{Average: 1.2, Count: 20}, ComputeRatings(scores))
}

func TestVariantSelectionEqualIgnoresWhitespace(t *testing.T) {
	a := VariantSelection{Size: "M ", Color: "red"}
	b := VariantSelection{Size: "M", Color: " red"}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(VariantSelection{Size: "L", Color: "red"}))
	assert.True(t, VariantSelection{Style: "  "}.IsZero())
}

func TestVariantOptionsValidate(t *testing.T) {
	opts := VariantOptions{Sizes: []string{"S", "M"}, Colors: []string{"Red"}}
	require.NoError(t, opts.Validate(VariantSelection{Size: "m", Color: "red"}))
	require.NoError(t, opts.Validate(VariantSelection{Style: "slim"}))
	require.Error(t, opts.Validate(VariantSelection{Size: "XL"}))
}

func TestStringListRoundTrip(t *testing.T) {
	list := StringList{"/uploads/a.png", "/uploads/b.png"}
	raw, err := list.Value()
	require.NoError(t, err)

	var out StringList
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, list, out)
	assert.True(t, out.Contains("/uploads/b.png"))

	var empty StringList
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
}

func TestRoleProfileMatchesRole(t *testing.T) {
	p := RoleProfile{Vendor: &VendorProfile{StoreName: "Acme"}}
	assert.True(t, p.MatchesRole(enums.RoleVendor))
	assert.False(t, p.MatchesRole(enums.RoleCustomer))

	p.Customer = &CustomerProfile{}
	assert.False(t, p.MatchesRole(enums.RoleVendor))
}

func TestDeliveryAgentActiveDeliveries(t *testing.T) {
	agent := &DeliveryAgentProfile{}
	id := uuid.New()
	agent.AddActiveDelivery(id)
	agent.AddActiveDelivery(id)
	assert.Len(t, agent.ActiveDeliveries, 1)
	assert.True(t, agent.RemoveActiveDelivery(id))
	assert.False(t, agent.RemoveActiveDelivery(id))
}

func TestAddressNormalizeDefaultsCountry(t *testing.T) {
	a := Address{FullName: " Ada ", Street: "1 Main", City: "Austin", State: "TX", ZipCode: "78701"}.Normalize()
	assert.Equal(t, "Ada", a.FullName)
	assert.Equal(t, "US", a.Country)
}

func TestActorHelpers(t *testing.T) {
	id := uuid.New()
	actor := &Actor{UserID: id, Role: enums.RoleVendor}
	assert.True(t, actor.Is(enums.RoleAdmin, enums.RoleVendor))
	assert.False(t, actor.Is(enums.RoleAdmin))
	assert.True(t, actor.Owns(id))
	assert.False(t, actor.Owns(uuid.New()))

	var anonymous *Actor
	assert.False(t, anonymous.Is(enums.RoleCustomer))
	assert.False(t, anonymous.Owns(id))
}
