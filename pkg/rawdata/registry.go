package rawdata

import "github.com/crystal-mush/palsave/pkg/gvas"

// Structural paths of the decoded substructures.
const (
	characterPath      = ".worldSaveData.CharacterSaveParameterMap.Value.RawData"
	groupMapPath       = ".worldSaveData.GroupSaveDataMap"
	itemSlotPath       = ".worldSaveData.ItemContainerSaveData.Value.Slots.Slots.RawData"
	characterSlotPath  = ".worldSaveData.CharacterContainerSaveData.Value.Slots.Slots.RawData"
	dynamicItemPath    = ".worldSaveData.DynamicItemSaveData.DynamicItemSaveData.RawData"
	baseCampPath       = ".worldSaveData.BaseCampSaveData.Value.RawData"
	workerDirectorPath = ".worldSaveData.BaseCampSaveData.Value.WorkerDirector.RawData"
	mapObjectPath      = ".worldSaveData.MapObjectSaveData"
	guildStoragePath   = ".worldSaveData.GuildExtraSaveDataMap.Value.GuildItemStorage.RawData"
)

// SkipPaths are the large subsystems kept as opaque bytes.
var SkipPaths = []string{
	".worldSaveData.FoliageGridSaveDataMap",
	".worldSaveData.MapObjectSpawnerInStageSaveData",
	".worldSaveData.WorkSaveData",
	".worldSaveData.BaseCampSaveData.Value.WorkCollection",
	".worldSaveData.BaseCampSaveData.Value.ModuleMap",
	".worldSaveData.EnemyCampSaveData",
	".worldSaveData.DungeonSaveData",
	".worldSaveData.DungeonPointMarkerSaveData",
	".worldSaveData.InvaderSaveData",
	".worldSaveData.OilrigSaveData",
	".worldSaveData.SupplySaveData",
	".worldSaveData.WorldLocationSaveData",
	".worldSaveData.GameTimeSaveData",
	".worldSaveData.BossSpawnerSaveData",
}

// structHints lists map keys and values whose struct type is not a GUID key
// or a property-list value.
var structHints = map[string]string{
	".worldSaveData.CharacterSaveParameterMap.Key":       "StructProperty",
	".worldSaveData.CharacterSaveParameterMap.Value":     "StructProperty",
	".worldSaveData.ItemContainerSaveData.Key":           "StructProperty",
	".worldSaveData.ItemContainerSaveData.Value":         "StructProperty",
	".worldSaveData.CharacterContainerSaveData.Key":      "StructProperty",
	".worldSaveData.CharacterContainerSaveData.Value":    "StructProperty",
	".worldSaveData.GroupSaveDataMap.Key":                "Guid",
	".worldSaveData.GroupSaveDataMap.Value":              "StructProperty",
	".worldSaveData.BaseCampSaveData.Key":                "Guid",
	".worldSaveData.BaseCampSaveData.Value":              "StructProperty",
	".worldSaveData.GuildExtraSaveDataMap.Key":           "Guid",
	".worldSaveData.GuildExtraSaveDataMap.Value":         "StructProperty",
	".worldSaveData.FoliageGridSaveDataMap.Key":          "StructProperty",
	".worldSaveData.MapObjectSpawnerInStageSaveData.Key": "StructProperty",

	".worldSaveData.MapObjectSaveData.MapObjectSaveData.ConcreteModel.ModuleMap.Value": "StructProperty",
	".worldSaveData.MapObjectSaveData.MapObjectSaveData.Model.EffectMap.Value":         "StructProperty",
}

// World returns the registry for Level.sav.
func World() *gvas.Registry {
	reg := gvas.NewRegistry().
		Register(characterPath, gvas.PayloadCodec(decodeCharacter)).
		Register(groupMapPath, groupMapCodec).
		Register(itemSlotPath, gvas.PayloadCodec(decodeItemSlot)).
		Register(characterSlotPath, gvas.PayloadCodec(decodeCharacterSlot)).
		Register(dynamicItemPath, gvas.PayloadCodec(decodeDynamicItem)).
		Register(baseCampPath, gvas.PayloadCodec(decodeBaseCamp)).
		Register(workerDirectorPath, gvas.PayloadCodec(decodeWorkerDirector)).
		Register(mapObjectPath, mapObjectCodec).
		Register(guildStoragePath, gvas.PayloadCodec(decodeGuildItemStorage))
	for _, p := range SkipPaths {
		reg.Register(p, gvas.Skip)
	}
	for p, t := range structHints {
		reg.Hint(p, t)
	}
	return reg
}

// Player returns the registry for per-player saves, which carry no custom
// substructures.
func Player() *gvas.Registry {
	return gvas.NewRegistry()
}

// Custom paths assigned to records built in memory, so that the writer
// dispatches them the same way as decoded ones.
const (
	CharacterCustom     = characterPath
	ItemSlotCustom      = itemSlotPath
	CharacterSlotCustom = characterSlotPath
	DynamicItemCustom   = dynamicItemPath
	BaseCampCustom      = baseCampPath
	WorkerCustom        = workerDirectorPath
	GuildStorageCustom  = guildStoragePath
)

// RawProperty wraps pl as a RawData byte array property tagged with custom.
func RawProperty(custom string, pl gvas.Payload) *gvas.Property {
	return &gvas.Property{
		Type:   gvas.ArrayProperty,
		Value:  &gvas.Array{ElemType: gvas.ByteProperty, Payload: pl},
		Custom: custom,
	}
}
