package engine

// AllZones lists every legal zone name
var AllZones = []ZoneName{
	ZoneHand,
	ZoneBattlefield,
	ZoneGraveyard,
	ZoneExile,
	ZoneLibrary,
	ZoneCommand,
}

// ParseZone converts a client-supplied zone string into a ZoneName
func ParseZone(name string) (ZoneName, bool) {
	switch z := ZoneName(name); z {
	case ZoneHand, ZoneBattlefield, ZoneGraveyard, ZoneExile, ZoneLibrary, ZoneCommand:
		return z, true
	default:
		return "", false
	}
}

// Zone returns the player's container for name, or false if name is not a zone
func (p *Player) Zone(name ZoneName) (Zone, bool) {
	switch name {
	case ZoneHand:
		return p.Hand, true
	case ZoneBattlefield:
		return p.Battlefield, true
	case ZoneGraveyard:
		return p.Graveyard, true
	case ZoneExile:
		return p.Exile, true
	case ZoneLibrary:
		return p.Library, true
	case ZoneCommand:
		return p.CommandZone, true
	default:
		return nil, false
	}
}

// ZoneOf resolves a raw zone string for the player
func (p *Player) ZoneOf(name string) (Zone, bool) {
	z, ok := ParseZone(name)
	if !ok {
		return nil, false
	}
	return p.Zone(z)
}

// FindCard reports which zone currently holds cardID
func (p *Player) FindCard(cardID string) (ZoneName, *Card, bool) {
	for _, name := range AllZones {
		zone, _ := p.Zone(name)
		if card, ok := zone[cardID]; ok {
			return name, card, true
		}
	}
	return "", nil, false
}
